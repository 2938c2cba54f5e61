// Package main provides a CLI for querying CrUX and PageSpeed results
// through the cached insights pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	insightscmd "github.com/linkforge/insights/internal/cmd/insightsd"
)

func main() {
	cfg, err := insightscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[INSIGHTS] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := insightscmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("query failed: %v", err)
	}
}
