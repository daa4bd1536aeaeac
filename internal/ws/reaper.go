package ws

import (
	"log/slog"
	"sync"
	"time"
)

// ReaperConfig controls the idle-room sweep cadence.
type ReaperConfig struct {
	Interval    time.Duration // normal sweep cadence
	IdleTimeout time.Duration // rooms idle longer than this are evicted
	Backoff     time.Duration // shortened delay after a failed sweep
}

func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:    5 * time.Minute,
		IdleTimeout: time.Hour,
		Backoff:     time.Minute,
	}
}

// Reaper periodically evicts rooms that have gone idle. It is started once
// at process startup, holds no connection state, and shuts down
// cooperatively between sweeps.
type Reaper struct {
	hub    *Hub
	log    *slog.Logger
	config ReaperConfig
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewReaper(hub *Hub, log *slog.Logger, config ReaperConfig) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		hub:    hub,
		log:    log,
		config: config,
		stop:   make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
	r.log.Info("reaper started", "interval", r.config.Interval, "idleTimeout", r.config.IdleTimeout)
}

func (r *Reaper) Stop() {
	close(r.stop)
	r.wg.Wait()
	r.log.Info("reaper stopped")
}

// run reschedules itself unconditionally: a sweep that panics is logged
// and retried after the backoff delay instead of killing the loop.
func (r *Reaper) run() {
	defer r.wg.Done()

	delay := r.config.Interval
	for {
		select {
		case <-r.stop:
			return
		case <-time.After(delay):
		}

		if ok := r.sweepOnce(); ok {
			delay = r.config.Interval
		} else {
			delay = r.config.Backoff
		}
	}
}

func (r *Reaper) sweepOnce() (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("reaper sweep panic", "panic", rec)
			ok = false
		}
	}()

	cutoff := r.hub.now().Add(-r.config.IdleTimeout)
	evicted := r.hub.ExpireIdle(cutoff)
	if len(evicted) > 0 {
		r.log.Info("reaped idle rooms", "count", len(evicted), "rooms", evicted)
	}
	return true
}
