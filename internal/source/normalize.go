// internal/source/normalize.go
package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NormalizeID collapses the identifier shapes seen in upstream payloads to
// one canonical string. Upstream records variously carry a bare string, a
// number, or an object keyed "id", "_id" or "offering_id"; everything past
// this function sees a plain string and never shape-sniffs.
func NormalizeID(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		id := strings.TrimSpace(val)
		if id == "" {
			return "", fmt.Errorf("empty identifier")
		}
		return id, nil
	case json.Number:
		return val.String(), nil
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), nil
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case map[string]interface{}:
		for _, key := range []string{"id", "_id", "offering_id"} {
			if inner, ok := val[key]; ok {
				return NormalizeID(inner)
			}
		}
		return "", fmt.Errorf("object identifier missing id/_id/offering_id key")
	case nil:
		return "", fmt.Errorf("nil identifier")
	}
	return "", fmt.Errorf("unsupported identifier type %T", v)
}
