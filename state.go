package phiguard

// State is the lifecycle state of a Manager.
type State int

const (
	// StateUninitialized means no key has been resolved yet.
	StateUninitialized State = iota

	// StateKeyed means a key is active.
	StateKeyed

	// StateWiped means the key was destroyed. The next operation generates a new key.
	StateWiped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyed:
		return "keyed"
	case StateWiped:
		return "wiped"
	default:
		return "unknown"
	}
}
