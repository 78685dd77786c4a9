// TV/Remote Fixture App
//
// This server hosts the TV calendar page, the Remote join page, and the
// signaling hub that pairs them, so the pairing flows can be clicked
// through by hand or driven by the e2e suite.
//
// Usage:
//
//	go run ./cmd/tvremote-app --addr :8080
//	go run ./cmd/tvremote-app --join-code-ttl 30s --debug
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/thesyncim/tvremote/cmd/tvremote-app/server"
	"github.com/thesyncim/tvremote/pkg/logging"
)

func main() {
	addr := pflag.String("addr", ":8080", "listen address")
	ttl := pflag.Duration("join-code-ttl", 5*time.Minute, "how long a TV join code stays valid")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	log := logging.NewConsole(*debug, "app")

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.JoinCodeTTL = *ttl
	cfg.Logger = log

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	if _, err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	fmt.Printf(`
TV/Remote Fixture App
=====================
1. Open %[1]s/tv/calendar in one window (the TV)
2. Open %[1]s/remote/join in another (the Remote)
3. Type the TV's join code into the Remote
4. Add ?share=true to the Remote URL for share-only mode

`, srv.BaseURL())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
}
