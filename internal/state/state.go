// Package state composes the application-wide dependencies — admin
// roster, replay cache, nonce log, and capability set — into a single
// object that is constructed once at startup and passed explicitly into
// every handler. There are no ambient singletons.
package state

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tbcnet/gateway/internal/admin"
	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/envelope"
	"github.com/tbcnet/gateway/internal/replay"
	"github.com/tbcnet/gateway/internal/router"
	"github.com/tbcnet/gateway/pkg/config"
)

// VerificationLayers lists the six verification layers in the fixed order
// spec §4.D runs them, for the admin GetLayerStatus command and the TGP
// health endpoint's security summary.
var VerificationLayers = []string{"L1", "L2", "L3", "L4", "L5", "L6"}

// State is the full set of process-wide, shared dependencies a running
// gateway needs.
type State struct {
	Config *config.Config
	Log    *logrus.Entry

	Replay   *replay.Cache
	Roster   *admin.Roster
	Nonces   *admin.NonceLog
	Caps     capability.Set
	Router   *router.Router
	AdminCtl *admin.Controller

	startedAt time.Time
	draining  atomic.Bool
	shutdown  chan struct{}
	once      sync.Once
}

// New wires the full dependency graph from configuration, an
// already-loaded admin roster, and the capability set the operator has
// configured (or the in-memory reference implementations for local
// development).
func New(cfg *config.Config, roster *admin.Roster, caps capability.Set, log *logrus.Entry) *State {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	replayCache := replay.New(100000, 10*time.Minute)
	replayCache.StartReaper(time.Minute)

	nonces := admin.NewNonceLog(admin.MaxRequestAge)
	nonces.StartReaper(admin.MaxRequestAge)

	s := &State{
		Config:    cfg,
		Log:       log,
		Replay:    replayCache,
		Roster:    roster,
		Nonces:    nonces,
		Caps:      caps,
		shutdown:  make(chan struct{}),
		startedAt: time.Now(),
	}

	envOpts := envelope.Options{SelfEndpoint: "http://" + cfg.ListenAddr + "/tgp"}
	s.Router = router.New(replayCache, caps, envOpts, log)

	auth := admin.NewAuthenticator(roster, nonces)
	handler := admin.NewHandler(admin.Dependencies{
		Roster:          roster,
		GetConfig:       func() map[string]any { return cfg.Sanitized() },
		GetStats:        s.stats,
		RPCHealth:       s.rpcHealth,
		LayerStatus:     s.layerStatus,
		RequestShutdown: s.scheduleShutdown,
	})
	s.AdminCtl = admin.NewController(auth, handler, log)

	return s
}

func (s *State) stats() map[string]any {
	return map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"draining":       s.draining.Load(),
		"replay_entries": s.Replay.Len(),
	}
}

// rpcHealth backs the admin GetRPCHealth command from the same RPCClient
// capability L3 already consults, so the admin view and the verification
// pipeline never disagree about chain liveness.
func (s *State) rpcHealth() map[string]any {
	if s.Caps.RPC == nil {
		return map[string]any{"configured": false}
	}
	live, err := s.Caps.RPC.HeadLiveness(context.Background())
	if err != nil {
		return map[string]any{"configured": true, "live": false, "error": err.Error()}
	}
	return map[string]any{"configured": true, "live": live}
}

// layerStatus backs the admin GetLayerStatus command with the same fixed
// L1..L6 ordering the verifier runs and the TGP health endpoint reports.
func (s *State) layerStatus() map[string]any {
	return map[string]any{"layers": VerificationLayers, "mode": "fail-closed"}
}

// UptimeSeconds reports how long the process has been running.
func (s *State) UptimeSeconds() int64 {
	return int64(time.Since(s.startedAt).Seconds())
}

// Draining reports whether the gateway has begun its shutdown sequence.
func (s *State) Draining() bool {
	return s.draining.Load()
}

// ShutdownRequested returns a channel that is closed once a shutdown has
// been scheduled, for the process entrypoint to select on.
func (s *State) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// scheduleShutdown flips the draining flag immediately so new admin
// commands and in-flight drains observe consistent state, then signals
// after delaySecs. New TGP requests are not rejected by this package;
// the HTTP server's own Shutdown(ctx) drains in-flight requests per the
// entrypoint's lifecycle handling.
func (s *State) scheduleShutdown(delaySecs int) error {
	s.draining.Store(true)
	go func() {
		if delaySecs > 0 {
			time.Sleep(time.Duration(delaySecs) * time.Second)
		}
		s.once.Do(func() { close(s.shutdown) })
	}()
	return nil
}

// Close stops background reapers. Call during graceful shutdown.
func (s *State) Close() {
	s.Replay.Stop()
	s.Nonces.Stop()
}
