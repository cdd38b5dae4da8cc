// Package main hosts the fipecrawler entrypoint.
//
// The binary runs in four modes: 'crawl' walks the FIPE catalog into the
// local SQLite cache, 'prices' fetches quotes for the newest pricing
// edition, 'sync' mirrors the cache into Postgres, and 'stats' prints
// per-table row counts. SIGINT and SIGTERM cancel the command context so
// in-flight batches flush before exit.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fipeops/fipecrawler/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
