package resolver

import (
	"bytes"

	"golang.org/x/text/unicode/norm"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// normalizeSource strips a UTF-8 byte order mark and applies Unicode NFC
// normalization before a file reaches the external parser, so two
// lexically equivalent files that differ only in byte-order-mark
// presence or composed/decomposed Unicode (e.g. an identifier written as
// "café" in NFC versus NFD) import and cache identically.
func normalizeSource(src []byte) []byte {
	src = bytes.TrimPrefix(src, bomUTF8)
	if !norm.NFC.IsNormal(src) {
		src = norm.NFC.Bytes(src)
	}
	return src
}
