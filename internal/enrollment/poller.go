package enrollment

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// poller runs tick on every interval of clock until stopped.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startPoller(clock clockwork.Clock, interval time.Duration, tick func(ctx context.Context)) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if ctx.Err() != nil {
					return
				}
				tick(ctx)
			}
		}
	}()

	return p
}

// signal asks the loop to exit without waiting. Safe to call from tick.
func (p *poller) signal() {
	p.once.Do(p.cancel)
}

// stop ends the loop and waits for an in-flight tick to return. It must
// not be called from tick or while holding a lock tick takes.
func (p *poller) stop() {
	p.signal()
	<-p.done
}
