package ast

import (
	"encoding/json"
	"fmt"
)

// Print produces a deterministic JSON representation of an AST node,
// suitable for golden-snapshot tests. File paths are not included (Pos is
// omitted entirely) so the same program parsed from different locations
// prints identically.
func Print(node Node) string {
	if node == nil {
		return "null"
	}
	data, err := json.MarshalIndent(simplify(node), "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}

// simplify strips position information from Atom and Program nodes and
// tags them with their Go type name so the JSON is both deterministic and
// self-describing. Any other value is returned unchanged.
func simplify(v interface{}) interface{} {
	switch n := v.(type) {
	case *Atom:
		params := make([]map[string]interface{}, len(n.Params))
		for i, p := range n.Params {
			params[i] = map[string]interface{}{"name": p.Name, "type": p.Type.String(), "flag": p.Flag.String()}
		}
		return map[string]interface{}{
			"type":     "Atom",
			"name":     n.Name,
			"params":   params,
			"requires": simplifyExpr(n.Requires),
			"ensures":  simplifyExpr(n.Ensures),
			"trusted":  n.Trusted,
		}
	case *Program:
		atoms := make([]interface{}, len(n.Atoms))
		for i, a := range n.Atoms {
			atoms[i] = simplify(a)
		}
		return map[string]interface{}{
			"type":  "Program",
			"atoms": atoms,
		}
	default:
		return v
	}
}

func simplifyExpr(e Expr) interface{} {
	if e == nil {
		return nil
	}
	return e.String()
}
