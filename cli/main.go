package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mwantia/recordstore"
	"github.com/mwantia/recordstore/backend/flatfile"
	"github.com/mwantia/recordstore/backend/memory"
	"github.com/mwantia/recordstore/backend/sqlite"
	"github.com/mwantia/recordstore/log"
)

func main() {
	dataDir := flag.String("data", ".recordstore", "data directory for the flat and embedded tiers")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	collection := flag.String("collection", "", "limit the export to one collection")
	export := flag.Bool("export", false, "dump a JSON export instead of diagnostics")
	flag.Parse()

	if err := run(*dataDir, *logLevel, *collection, *export); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, logLevel, collection string, export bool) error {
	ctx := context.Background()
	logger := log.NewLogger("recordstore", log.Parse(logLevel), "", false)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	embedded, err := sqlite.New(dataDir + "/records.db")
	if err != nil {
		return fmt.Errorf("opening embedded tier: %w", err)
	}

	service, err := recordstore.New(
		recordstore.WithAdapters(
			embedded,
			flatfile.New(dataDir, 0),
			memory.New(),
		),
		recordstore.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if err := service.Initialize(ctx); err != nil {
		return err
	}
	defer service.Close(ctx)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if export {
		snapshot, err := service.Export(ctx, collection)
		if err != nil {
			return err
		}
		return encoder.Encode(snapshot)
	}

	return encoder.Encode(service.Diagnose(ctx))
}
