// Package connectivity probes network reachability and emits
// connected/disconnected transitions.
package connectivity

import (
	"context"
	"net"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Config holds observer configuration.
type Config struct {
	// ProbeAddr is the TCP address dialed to check reachability.
	ProbeAddr string
	// Interval between probes.
	Interval time.Duration
	// DialTimeout for a single probe.
	DialTimeout time.Duration
}

// Observer polls a probe address and reports reachability transitions on a
// channel: true on reconnect, false on loss. The first observation is
// always emitted so consumers learn the initial state.
type Observer struct {
	config Config
	ch     chan bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewObserver creates a connectivity observer. Call Start to begin probing.
func NewObserver(cfg Config) *Observer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		config: cfg,
		ch:     make(chan bool, 4),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Transitions returns the channel of reachability transitions.
func (o *Observer) Transitions() <-chan bool {
	return o.ch
}

// Start launches the probe loop.
func (o *Observer) Start() {
	go o.run()
}

// Close stops probing.
func (o *Observer) Close() {
	o.cancel()
}

func (o *Observer) run() {
	var last *bool

	probe := func() {
		up := o.probe()
		if last != nil && *last == up {
			return
		}
		last = &up
		zlog.Info().Msgf("connectivity: %s", statusWord(up))
		select {
		case o.ch <- up:
		default:
			// A slow consumer only needs the latest transition
		}
	}

	probe()
	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

func (o *Observer) probe() bool {
	conn, err := net.DialTimeout("tcp", o.config.ProbeAddr, o.config.DialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func statusWord(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}
