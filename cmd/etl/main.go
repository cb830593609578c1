// Command etl runs the deal pipeline once and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"watch-deal-finder/internal/app"
	"watch-deal-finder/internal/config"
	"watch-deal-finder/internal/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "fetch and score without writing to the store")
	printJSON := flag.Bool("json", false, "print the run report as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := ""
	if *dryRun {
		driver = "memory"
	}
	a, err := app.New(ctx, cfg, driver)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()

	report, err := a.Pipeline.Run(ctx, services.RunOptions{DryRun: *dryRun})
	if err != nil {
		log.Printf("Run failed: %v", err)
	}
	if report == nil {
		os.Exit(1)
	}

	if *printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Printf("Failed to encode report: %v", err)
		}
	}

	log.Printf("Run %s: fetched %v, stored %d deals, %d scored, %d without market price",
		report.RunID, report.Fetched, report.Stored, report.Scored, report.NoMarketPrice)
	if err != nil {
		os.Exit(1)
	}
}
