// Package supervisor runs the long-lived background services (HTTP
// server, broker consumer, Redis fanout) under a suture tree so a crashed
// service is restarted with backoff instead of taking the process down.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/iliyamo/queueease/internal/logging"
)

// Config tunes restart behaviour.  Zero values take suture's defaults.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// Tree has two layers: messaging (consumer, fanout) and api (HTTP), so a
// broker outage that keeps restarting the consumer never stops the API.
type Tree struct {
	root      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

func New(cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = eventHook(logging.Component("supervisor"))

	t := &Tree{
		root:      suture.New("queueease", rootSpec),
		messaging: suture.New("messaging", spec),
		api:       suture.New("api", spec),
	}
	t.root.Add(t.messaging)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddMessaging(svc suture.Service) suture.ServiceToken { return t.messaging.Add(svc) }

func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken { return t.api.Add(svc) }

// Serve blocks until ctx is canceled and every service has stopped.
func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }

func (t *Tree) ServeBackground(ctx context.Context) <-chan error { return t.root.ServeBackground(ctx) }

func eventHook(log zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		e := log.Warn()
		if ev.Type() == suture.EventTypeResume {
			e = log.Info()
		}
		e.Fields(ev.Map()).Msg(ev.String())
	}
}
