package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"orderpreview/pkg/config"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/pipeline"
	"orderpreview/pkg/store"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Reruns screenshots whose latest run failed, e.g. after a layout map
// recalibration. Each retry is recorded as a new run.
func main() {
	kind := flag.String("kind", "", "only retry failures of this kind (e.g. layout_drift)")
	root := flag.String("root", "", "image lookup root (default LOOKUP_ROOT)")
	limit := flag.Int("limit", 100, "maximum screenshots to retry")
	flag.Parse()

	config.LoadDotEnv()
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	if settings.DSN == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", settings.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT DISTINCT ON (input) input, status, error_kind FROM preview_runs
		WHERE source = 'screenshot' AND input <> '' ORDER BY input, created_at DESC`)
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	var inputs []string
	for rows.Next() {
		var input, status string
		var errKind sql.NullString
		if err := rows.Scan(&input, &status, &errKind); err != nil {
			log.Printf("scan: %v", err)
			continue
		}
		if status != "failed" || (*kind != "" && errKind.String != *kind) {
			continue
		}
		if _, err := os.Stat(input); err != nil {
			log.Printf("SKIP %s: %v", input, err)
			continue
		}
		inputs = append(inputs, input)
		if len(inputs) >= *limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("read runs: %v", err)
	}
	rows.Close()
	log.Printf("Retrying %d screenshots", len(inputs))

	reg, err := config.LoadRegistry(settings.CatalogPath)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	gdb, err := store.Open(settings.DSN, false)
	if err != nil {
		log.Fatalf("open gorm: %v", err)
	}
	svc := pipeline.New(settings, reg, ocr.TesseractRecognizer{})
	svc.Sink = store.Sink{DB: gdb}

	ok := 0
	for _, in := range inputs {
		resp, err := svc.Run(context.Background(), pipeline.Request{ID: uuid.NewString(), Screenshot: in, LookupRoot: *root})
		if err != nil {
			log.Printf("still failing %s (%s): %v", in, pipeline.Kind(err), err)
			continue
		}
		ok++
		fmt.Printf("recovered %s -> %s warnings=%d\n", in, resp.PreviewPath, len(resp.Warnings))
	}
	log.Printf("Retry done: recovered=%d of %d", ok, len(inputs))
}
