package schedule

import (
	"context"
	"time"
)

// Loop drives cd from ticks, calling fire once on start and again every time
// the countdown reaches zero. Values received on intervals change the refresh
// interval without firing; intervals may be nil.
//
// Loop returns ctx.Err() when the context ends and nil when ticks is closed.
func Loop(ctx context.Context, ticks <-chan time.Time, intervals <-chan int, cd *Countdown, fire func()) error {
	gen := cd.Start()
	fire()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case minutes, ok := <-intervals:
			if !ok {
				intervals = nil
				continue
			}
			gen = cd.SetInterval(minutes)
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if cd.Tick(gen) {
				fire()
			}
		}
	}
}
