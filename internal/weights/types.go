package weights

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPolicy is returned for weighting policies this package does not implement.
var ErrUnsupportedPolicy = errors.New("unsupported weighting policy")

// #region policy
// Policy selects how mixture weight parameters are keyed.
type Policy int

const (
	// Global keeps one parameter per order, shared by every context.
	Global Policy = iota
	// ContextAdaptive keeps one parameter per (order, context) pair.
	ContextAdaptive
)

func (p Policy) String() string {
	switch p {
	case Global:
		return "global"
	case ContextAdaptive:
		return "context"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Valid reports whether p is a supported policy.
func (p Policy) Valid() bool {
	return p == Global || p == ContextAdaptive
}

// ParsePolicy maps "global" and "context" (or "context-adaptive") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global", "":
		return Global, nil
	case "context", "context-adaptive", "local":
		return ContextAdaptive, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedPolicy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// #endregion policy
