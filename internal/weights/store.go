package weights

import (
	"fmt"

	"github.com/danielpatrickdp/bvmm/internal/history"
)

// #region store
// Store holds the per-order parameters θ that drive the mixture weights.
// The variant is chosen once by NewStore.
type Store interface {
	Policy() Policy
	// Param returns θ for the order in the given context; missing entries are 0.
	Param(order int, ctx history.Key) float64
	Set(order int, ctx history.Key, theta float64)
	// Len returns the number of stored parameters.
	Len() int
	Reset()
}

// NewStore creates the store for policy covering orders 0..maxOrder.
func NewStore(policy Policy, maxOrder int) (Store, error) {
	if maxOrder < 0 {
		return nil, fmt.Errorf("new store: negative max order %d", maxOrder)
	}
	switch policy {
	case Global:
		return &GlobalStore{params: make([]float64, maxOrder+1)}, nil
	case ContextAdaptive:
		s := &ContextStore{params: make([]map[history.Key]float64, maxOrder+1)}
		s.Reset()
		return s, nil
	default:
		return nil, fmt.Errorf("new store: %w: %d", ErrUnsupportedPolicy, int(policy))
	}
}

// #endregion store

// #region global
// GlobalStore keeps a single θ per order and ignores the context.
type GlobalStore struct {
	params []float64
}

func (s *GlobalStore) Policy() Policy { return Global }

func (s *GlobalStore) Param(order int, _ history.Key) float64 {
	return s.params[order]
}

func (s *GlobalStore) Set(order int, _ history.Key, theta float64) {
	s.params[order] = theta
}

func (s *GlobalStore) Len() int { return len(s.params) }

func (s *GlobalStore) Reset() {
	clear(s.params)
}

// #endregion global

// #region context
// ContextStore keeps one θ per (order, context). Entries are created on first
// write and are never evicted, so memory grows with the number of distinct
// contexts seen. Bounding it (e.g. with an LRU) would change the learned
// statistics and must be done by the caller.
type ContextStore struct {
	params []map[history.Key]float64
}

func (s *ContextStore) Policy() Policy { return ContextAdaptive }

func (s *ContextStore) Param(order int, ctx history.Key) float64 {
	return s.params[order][ctx]
}

func (s *ContextStore) Set(order int, ctx history.Key, theta float64) {
	s.params[order][ctx] = theta
}

func (s *ContextStore) Len() int {
	n := 0
	for _, m := range s.params {
		n += len(m)
	}
	return n
}

// Reset drops every learned context.
func (s *ContextStore) Reset() {
	for k := range s.params {
		s.params[k] = make(map[history.Key]float64)
	}
}

// #endregion context
