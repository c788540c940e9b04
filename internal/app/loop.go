package app

import "time"

// runFrames runs one detection pass per tick. A slow pass makes the ticker
// drop ticks rather than queue them.
func (a *App) runFrames(stop <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			a.Tick(now)
		}
	}
}

// runSweeps expires stale tracks on its own ticker so tracks age out even
// when no frames arrive.
func (a *App) runSweeps(stop <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			a.Sweep(now)
		}
	}
}
