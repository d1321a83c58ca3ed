package txn

import (
	"sync"

	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
)

// Guard allows one in-flight submission per control.
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// Acquire claims control. The returned func releases it; calling it more
// than once is harmless.
func (g *Guard) Acquire(control string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[control]; busy {
		return nil, apperrors.Conflict("a submission for this action is already pending")
	}
	g.inflight[control] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, control)
			g.mu.Unlock()
		})
	}, nil
}

func (g *Guard) Busy(control string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[control]
	return busy
}
