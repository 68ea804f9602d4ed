package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heaven-console/tui/internal/logging"
	"github.com/heaven-console/tui/internal/mockheaven"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Listen address")
	port := flag.Int("port", 3000, "Listen port")
	token := flag.String("token", "", "Require this auth token")
	tick := flag.Duration("tick", 500*time.Millisecond, "Interval between generated serial lines")
	logCap := flag.Int("log-capacity", 64*1024, "Bytes of serial log kept per port")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger, closeLog, err := logging.New(logging.Options{Level: *logLevel, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	hub := mockheaven.NewHub()
	store := mockheaven.NewStore(hub, *logCap)
	server := mockheaven.NewServer(store, hub, *token, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := mockheaven.NewGenerator(store, *tick)
	gen.Seed()
	gen.Start(ctx)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	addr := net.JoinHostPort(*host, fmt.Sprint(*port))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Strs("ports", store.Labels()).Msg("mock heaven listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
