package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"orderpreview/pkg/config"
	"orderpreview/pkg/store"
	"orderpreview/process/report"
)

func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching runs")
	flag.Parse()

	config.LoadDotEnv()
	db, err := store.Open(os.Getenv("DB_DSN"), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; export DB_DSN and retry\n", err)
		os.Exit(2)
	}
	if err := report.RunReport(db, *month, *list, os.Stdout); err != nil {
		log.Fatalf("report: %v", err)
	}
}
