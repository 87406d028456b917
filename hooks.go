package dirbridge

import (
	"sync"

	"github.com/dirbridge/dirbridge/pkg/reconcile"
)

// RunCompletedHook is called after every completed reconciliation run,
// scheduled or manual. Hooks run synchronously on the run's goroutine;
// long work belongs in the callback's own goroutine.
type RunCompletedHook func(result *reconcile.Result)

// hooks manages event callbacks for run completion.
type hooks struct {
	mu           sync.RWMutex
	runCompleted []RunCompletedHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) addRunCompleted(fn RunCompletedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runCompleted = append(h.runCompleted, fn)
}

func (h *hooks) fireRunCompleted(result *reconcile.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.runCompleted {
		fn(result)
	}
}
