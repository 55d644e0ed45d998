package lockerd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// layoutSchema validates the locker layout document loaded at startup
const layoutSchema = `{
  "type": "object",
  "required": ["lockers"],
  "additionalProperties": false,
  "properties": {
    "lockers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// Layout is the static locker configuration loaded at process start
type Layout struct {
	Lockers []LayoutLocker `json:"lockers"`
}

// LayoutLocker describes one configured locker
type LayoutLocker struct {
	ID string `json:"id"`
}

// ParseLayout validates a layout document against its schema and returns the
// configured locker IDs in document order. IDs must be unique.
func ParseLayout(data []byte) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(layoutSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("layout validation failed: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return nil, fmt.Errorf("invalid locker layout: %s", strings.Join(problems, "; "))
	}

	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to decode locker layout: %w", err)
	}

	seen := make(map[string]bool, len(layout.Lockers))
	ids := make([]string, 0, len(layout.Lockers))
	for _, l := range layout.Lockers {
		if seen[l.ID] {
			return nil, fmt.Errorf("invalid locker layout: duplicate locker id %q", l.ID)
		}
		seen[l.ID] = true
		ids = append(ids, l.ID)
	}

	return ids, nil
}
