package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"orderpreview/pkg/config"
	"orderpreview/pkg/store"
	"orderpreview/process/sanitize"
)

func main() {
	days := flag.Int("days", 30, "prune runs older than this many days")
	status := flag.String("status", "", "only prune runs with this status (ok|failed)")
	dryRun := flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
	yes := flag.Bool("yes", false, "Confirm destructive action (required to actually delete)")
	flag.Parse()

	config.LoadDotEnv()
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	db, err := store.Open(settings.DSN, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; export DB_DSN and retry\n", err)
		os.Exit(2)
	}
	opts := sanitize.Options{
		Before:  time.Now().AddDate(0, 0, -*days),
		Status:  *status,
		DryRun:  *dryRun,
		Yes:     *yes,
		WorkDir: settings.WorkDir,
	}
	if _, err := sanitize.Run(db, opts); err != nil {
		log.Fatalf("prune failed: %v", err)
	}
}
