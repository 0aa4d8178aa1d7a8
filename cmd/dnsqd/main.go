package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lc/dnsq/internal/config"
	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/engine"
	"github.com/lc/dnsq/internal/log"
	"github.com/lc/dnsq/pkg/api"
)

func main() {
	// load config
	cfg, err := config.New().Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// build deps
	client, err := dnsclient.New(cfg.Resolver.Addr(),
		dnsclient.WithQueryTimeout(cfg.Resolver.QueryTimeout),
		dnsclient.WithRecursionDesired(!cfg.Resolver.DisableRecursion),
		dnsclient.WithActivityLogging(cfg.Resolver.LogActivity),
	)
	if err != nil {
		log.Fatalf("dns client error: %v", err)
	}
	log.Info("upstream resolver configured", "addr", cfg.Resolver.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(client)
	eng.Run(ctx)

	// start the api over unix socket
	apiSrv := api.New(eng)
	sockPath := cfg.Socket.Path

	go func() {
		if err := apiSrv.ListenAndServe(sockPath); err != nil {
			log.Fatalf("api listen: %v", err)
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	<-sig
	log.Info("shutting down…")

	shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("api shutdown error: %v", err)
	}
	cancel()
	if err := eng.Close(); err != nil {
		log.Errorf("engine close error: %v", err)
	}
}
