package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// topicSchema describes one catalog entry. Checked before decoding so that
// malformed entries are reported with their field path.
const topicSchema = `{
  "type": "object",
  "required": ["id", "title", "level", "order_index"],
  "properties": {
    "id":             {"type": "string", "minLength": 1},
    "title":          {"type": "string", "minLength": 1},
    "description":    {"type": "string"},
    "level":          {"enum": ["beginner", "intermediate", "advanced", "expert"]},
    "order_index":    {"type": "integer", "minimum": 0},
    "xp_reward":      {"type": "integer", "minimum": 0},
    "badge_icon":     {"type": "string"},
    "video_duration": {"type": "integer", "minimum": 0}
  }
}`

var catalogSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["topics"],
  "properties": {
    "topics": {"type": "array", "items": ` + topicSchema + `}
  }
}`)

// validateDocument checks a decoded YAML document against the catalog schema.
func validateDocument(doc any) error {
	result, err := gojsonschema.Validate(catalogSchema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
}
