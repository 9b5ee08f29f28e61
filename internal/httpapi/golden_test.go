package httpapi

import (
	"testing"

	"github.com/sunholo/ailang/testutil"
)

// TestVersionResponseGolden pins the /version payload shape so a field
// rename or added field is caught even though handleVersion has no other
// behavior to assert against.
func TestVersionResponseGolden(t *testing.T) {
	resp := VersionResponse{Version: "dev", Service: "mumei"}
	testutil.CompareWithGolden(t, "httpapi", "version_response", resp)
}
