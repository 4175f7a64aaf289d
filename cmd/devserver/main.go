package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/cartsync/internal"
	"github.com/dukerupert/cartsync/internal/devserver"
)

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	port := flag.Uint("port", uint(cfg.DevServer.Port), "listen port")
	demoUser := flag.String("user", "demo-user", "print a signed-in token for this user id on startup")
	legacy := flag.Bool("legacy-errors", false, "report stock errors as free text only")
	flag.Parse()

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	opts := []devserver.Option{
		devserver.WithLogger(logger),
		devserver.WithMetricsNamespace(cfg.Metrics.Namespace + "_devserver"),
	}
	if key := os.Getenv("DEVSERVER_SIGNING_KEY"); key != "" {
		opts = append(opts, devserver.WithSigningKey([]byte(key)))
	}
	if *legacy {
		opts = append(opts, devserver.WithLegacyErrors())
	}
	srv := devserver.New(opts...)

	if *demoUser != "" {
		token, err := srv.IssueToken(*demoUser, *demoUser+"@example.com", 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to issue demo token: %w", err)
		}
		logger.Info("demo token issued", "user_id", *demoUser, "token", token)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down devserver")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
