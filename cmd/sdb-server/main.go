// Command sdb-server runs a duskdb TCP server, grounded on
// _examples/matteso1-sentinel/cmd/sentinel-server/main.go (flag
// parsing, signal-driven shutdown), adapted to use pflag and an
// optional YAML config file (internal/config) instead of plain flag.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/duskdb/duskdb/internal/config"
	"github.com/duskdb/duskdb/internal/server"
	"github.com/duskdb/duskdb/internal/store"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (optional)")
	host := pflag.String("host", "localhost", "server host address")
	port := pflag.Int("port", 5454, "server port number")
	dataDir := pflag.String("data", "./data", "data directory")
	pflag.Parse()

	var address, dir string
	var opts store.Options

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		address = cfg.Address()
		dir = cfg.DataDir()
		opts = cfg.StoreOptions()
	} else {
		address = net.JoinHostPort(*host, fmt.Sprintf("%d", *port))
		dir = *dataDir
	}

	s, err := store.Open(dir, opts, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(address, s, slog.Default())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		s.Close()
		os.Exit(0)
	}()

	slog.Info("starting duskdb server", "address", address, "data_dir", dir)
	if err := srv.Start(); err != nil && err != server.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
