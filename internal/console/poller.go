package console

import (
	"context"
	"time"
)

const (
	// DefaultPollInterval is the cadence of liveness and metrics checks.
	DefaultPollInterval = 2 * time.Second
	minProbeTimeout     = time.Second
)

// pollResult is the outcome of one polling cycle.
type pollResult struct {
	connected  bool
	probeErr   error
	metrics    *Metrics
	metricsErr error
}

// poller runs polling cycles one after another. The next cycle is armed
// only after the previous one finished, so cycles never overlap.
type poller struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	// connected reads the session's current connectivity at each tick.
	connected func() bool
	report    func(pollResult)
}

func (p *poller) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res := p.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		p.report(res)
		timer.Reset(p.interval)
	}
}

func (p *poller) cycle(ctx context.Context) pollResult {
	wasConnected := p.connected()

	var res pollResult
	res.probeErr = p.probe(ctx)
	res.connected = res.probeErr == nil

	if !wasConnected {
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	info, err := p.backend.SystemInfo(fetchCtx)
	if err != nil {
		res.metricsErr = err
		return res
	}
	res.metrics = &Metrics{
		CPU:              clampPercent(info.CPUUsage),
		Memory:           clampPercent(info.MemoryUsage),
		Disk:             clampPercent(info.DiskUsage),
		WorkingDirectory: info.CurrentDirectory,
	}
	return res
}

func (p *poller) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.backend.Health(probeCtx)
}

func probeTimeout(interval time.Duration) time.Duration {
	if interval < minProbeTimeout {
		return minProbeTimeout
	}
	return interval
}
