package dedup

import (
	"context"
	"sync"
)

// Guard bounds concurrent processing of one message id to a single worker.
// A caller that gets acquired=true must call release exactly once.
type Guard interface {
	Acquire(ctx context.Context, messageID string) (release func(), acquired bool, err error)
}

// InFlight is the process-local guard: a counter per message id that is
// removed once it drops back to zero.
type InFlight struct {
	mu       sync.Mutex
	inFlight map[string]int
}

var _ Guard = (*InFlight)(nil)

func NewInFlight() *InFlight {
	return &InFlight{inFlight: make(map[string]int)}
}

func (g *InFlight) Acquire(_ context.Context, messageID string) (func(), bool, error) {
	g.mu.Lock()
	g.inFlight[messageID]++
	if g.inFlight[messageID] > 1 {
		g.decrementLocked(messageID)
		g.mu.Unlock()
		return func() {}, false, nil
	}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.decrementLocked(messageID)
			g.mu.Unlock()
		})
	}, true, nil
}

func (g *InFlight) decrementLocked(messageID string) {
	g.inFlight[messageID]--
	if g.inFlight[messageID] <= 0 {
		delete(g.inFlight, messageID)
	}
}

// Len returns the number of message ids currently tracked.
func (g *InFlight) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}
