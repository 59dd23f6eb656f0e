package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"orderpreview/pkg/config"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/pipeline"
)

func main() {
	f := flag.String("file", "", "screenshot to OCR")
	lang := flag.String("lang", "eng", "tesseract language")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	config.LoadDotEnv()
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	reg, err := config.LoadRegistry(settings.CatalogPath)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	svc := pipeline.New(settings, reg, ocr.TesseractRecognizer{Language: *lang})
	svc.Verbose = true
	resp, err := svc.Extract(context.Background(), pipeline.Request{Screenshot: *f})
	if err != nil {
		log.Fatalf("ocr error (%s): %v", pipeline.Kind(err), err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"rows":        resp.Rows,
		"corrections": resp.Corrections,
		"extras":      resp.Extras,
		"stats":       resp.Stats,
	})
	fmt.Fprintf(os.Stderr, "crops and QA sheet in %s\n", resp.WorkDir)
}
