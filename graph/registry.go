// Package graph assembles the residuals of one solve pass from the sliding-window state,
// the landmark manager and the inter-drone measurements, and plans which of them a
// marginalization step folds into a prior.
package graph

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/swarmvins/residual"
)

// ErrReleased is returned when a residual is added to a registry after its pass ended.
var ErrReleased = errors.New("residual registry already released")

// Registry owns the residuals built for one solve pass. Releasing it at the end of the
// pass drops every residual together; descriptors obtained from them must not be used
// afterwards.
type Registry struct {
	id uuid.UUID

	mu        sync.Mutex
	residuals []*residual.Info
	released  bool
}

// NewRegistry starts a solve pass.
func NewRegistry() *Registry {
	return &Registry{id: uuid.New()}
}

// ID identifies the solve pass in logs.
func (r *Registry) ID() uuid.UUID {
	return r.id
}

// Add takes ownership of info.
func (r *Registry) Add(info *residual.Info) error {
	if info == nil {
		return errors.New("cannot register a nil residual")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return errors.Wrapf(ErrReleased, "pass %s", r.id)
	}
	r.residuals = append(r.residuals, info)
	return nil
}

// Residuals returns the registered residuals in insertion order.
func (r *Registry) Residuals() []*residual.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*residual.Info(nil), r.residuals...)
}

// Len is the number of registered residuals.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.residuals)
}

// Release ends the pass. It is safe to call more than once.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.residuals = nil
	r.released = true
}
