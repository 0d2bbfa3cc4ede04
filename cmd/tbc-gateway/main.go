// Command tbc-gateway runs the Transaction Border Controller: the TGP
// HTTP/WebSocket surface and the admin control plane on one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tbcnet/gateway/internal/admin"
	"github.com/tbcnet/gateway/internal/capability"
	"github.com/tbcnet/gateway/internal/tgp"
	"github.com/tbcnet/gateway/internal/transport"
	"github.com/tbcnet/gateway/internal/state"
	"github.com/tbcnet/gateway/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "tbc-gateway",
		Short: "Transaction Border Controller gateway",
		RunE:  run,
	}
	root.Flags().String("listen-addr", "", "override listen_addr from environment")
	root.Flags().String("log-level", "", "override log_level from environment")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	log := newLogger(cfg.LogLevel)

	roster, err := admin.ParseRosterEnv(cfg.AdminKeys)
	if err != nil {
		return fmt.Errorf("parse admin_keys: %w", err)
	}

	caps := capability.Set{
		Registry:  capability.NewMemoryRegistry(),
		RPC:       capability.NewMemoryRPCClient(),
		Policy:    capability.NewMemoryPolicyStore(),
		Escrow:    capability.NewMemoryEscrowState(),
		ZK:        capability.NewMemoryZKVerifier(nil),
		Nullifier: capability.NewMemoryNullifierStore(),
	}

	s := state.New(cfg, roster, caps, log)
	defer s.Close()

	tgpRouter := transport.NewTGPRouter(s.Router, cfg.WSPath, cfg.AllowOrigin, func() transport.HealthInfo {
		return transport.HealthInfo{
			Status:    "ok",
			Version:   config.Version,
			Protocol:  tgp.ProtocolVersion,
			Timestamp: time.Now(),
			Endpoints: map[string]string{
				"tgp":          "/tgp",
				"ws":           cfg.WSPath,
				"admin_health": "/admin/health",
				"admin_exec":   "/admin/exec",
			},
			Security: transport.SecurityInfo{
				Layers: state.VerificationLayers,
				Mode:   "fail-closed",
			},
		}
	}, log)

	adminRouter := transport.NewAdminRouter(s.AdminCtl, func() transport.AdminHealthInfo {
		return transport.AdminHealthInfo{
			Status:        "ok",
			Service:       "tbc-gateway",
			UptimeSeconds: s.UptimeSeconds(),
			TBCID:         cfg.TBCID,
		}
	}, cfg.AllowOrigin, log)

	mux := http.NewServeMux()
	mux.Handle("/", tgpRouter)
	mux.Handle("/admin/", adminRouter)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("tbc-gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-s.ShutdownRequested():
		log.Info("admin-requested shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}
