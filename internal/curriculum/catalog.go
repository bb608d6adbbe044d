// Package curriculum provides the ordered, read-only multiplication topic catalog.
package curriculum

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned for an empty catalog or an unknown topic.
var ErrNotFound = errors.New("not found")

// Catalog lists topics sorted by OrderIndex ascending. Implementations
// return ErrNotFound when no topics exist.
type Catalog interface {
	ListTopics(ctx context.Context) ([]Topic, error)
}

// Sort orders topics by OrderIndex and rejects duplicate ids or indexes.
func Sort(topics []Topic) ([]Topic, error) {
	out := make([]Topic, len(topics))
	copy(out, topics)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })

	ids := make(map[string]struct{}, len(out))
	for i, t := range out {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		ids[t.ID] = struct{}{}
		if i > 0 && out[i-1].OrderIndex == t.OrderIndex {
			return nil, fmt.Errorf("topics %q and %q share order_index %d", out[i-1].ID, t.ID, t.OrderIndex)
		}
	}
	return out, nil
}

// Find returns the topic with id and its position in the ordered list.
func Find(topics []Topic, id string) (Topic, int, error) {
	for i, t := range topics {
		if t.ID == id {
			return t, i, nil
		}
	}
	return Topic{}, -1, fmt.Errorf("topic %s: %w", id, ErrNotFound)
}

// Next returns the topic following id in catalog order, if any.
func Next(topics []Topic, id string) (Topic, bool) {
	_, i, err := Find(topics, id)
	if err != nil || i+1 >= len(topics) {
		return Topic{}, false
	}
	return topics[i+1], true
}

// Static is a fixed in-memory catalog.
type Static struct {
	topics []Topic
}

// NewStatic validates and orders topics into a catalog.
func NewStatic(topics []Topic) (*Static, error) {
	sorted, err := Sort(topics)
	if err != nil {
		return nil, err
	}
	return &Static{topics: sorted}, nil
}

func (s *Static) ListTopics(_ context.Context) ([]Topic, error) {
	if len(s.topics) == 0 {
		return nil, fmt.Errorf("catalog is empty: %w", ErrNotFound)
	}
	out := make([]Topic, len(s.topics))
	copy(out, s.topics)
	return out, nil
}
