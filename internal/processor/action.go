package processor

import (
	"fmt"
	"strings"
)

// ActionKind names what Apply does to each item scheduled for removal
type ActionKind string

const (
	ActionNone       ActionKind = "none"
	ActionTag        ActionKind = "tag"
	ActionCollection ActionKind = "collection"
	ActionRemove     ActionKind = "remove"
	ActionDelete     ActionKind = "delete"
)

// Action is the request handed to an Executor for one item
type Action struct {
	Kind   ActionKind `json:"kind"`
	Label  string     `json:"label,omitempty"`  // tag name for ActionTag
	Target string     `json:"target,omitempty"` // destination for ActionCollection
}

func (a Action) String() string {
	switch {
	case a.Label != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.Label)
	case a.Target != "":
		return fmt.Sprintf("%s(%s)", a.Kind, a.Target)
	default:
		return string(a.Kind)
	}
}

// ActionKinds returns every action kind in display order
func ActionKinds() []ActionKind {
	return []ActionKind{ActionNone, ActionTag, ActionCollection, ActionRemove, ActionDelete}
}

// ParseAction converts a user-supplied action name
func ParseAction(name string) (ActionKind, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range ActionKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, name)
}
