package curriculum

import "fmt"

// Level is the difficulty band of a topic.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelExpert       Level = "expert"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert:
		return true
	}
	return false
}

// Topic is one step in the ordered multiplication curriculum.
type Topic struct {
	ID            string `yaml:"id" json:"id"`
	Title         string `yaml:"title" json:"title"`
	Description   string `yaml:"description" json:"description"`
	Level         Level  `yaml:"level" json:"level"`
	OrderIndex    int    `yaml:"order_index" json:"order_index"`
	XPReward      int    `yaml:"xp_reward" json:"xp_reward"`
	BadgeIcon     string `yaml:"badge_icon" json:"badge_icon"`
	VideoDuration int    `yaml:"video_duration,omitempty" json:"video_duration,omitempty"` // seconds
}

// Validate checks the invariants a single topic must hold.
func (t Topic) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("topic id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("topic %s: title is required", t.ID)
	}
	if !t.Level.Valid() {
		return fmt.Errorf("topic %s: unknown level %q", t.ID, t.Level)
	}
	if t.OrderIndex < 0 {
		return fmt.Errorf("topic %s: order_index must be >= 0", t.ID)
	}
	if t.XPReward < 0 {
		return fmt.Errorf("topic %s: xp_reward must be >= 0", t.ID)
	}
	return nil
}

// catalogFile is the on-disk shape of a curriculum YAML file.
type catalogFile struct {
	Topics []Topic `yaml:"topics"`
}
