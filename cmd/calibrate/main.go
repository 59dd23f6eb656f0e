package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"orderpreview/pkg/config"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"
)

// calibrate samples the layout sentinels of a reference screenshot, dumps the
// column crops for inspection and optionally prints a recalibrated layout
// section for the registry file.
func main() {
	shot := flag.String("shot", "", "reference screenshot of the order form")
	catalogPath := flag.String("catalog", "", "registry file (default CATALOG_PATH)")
	out := flag.String("out", "calibration", "directory for the crop dump")
	version := flag.String("version", "", "when set, print a layout section recalibrated to this version")
	flag.Parse()
	if *shot == "" {
		log.Fatal("--shot is required")
	}

	config.LoadDotEnv()
	path := *catalogPath
	if path == "" {
		settings, err := config.Load()
		if err != nil {
			log.Fatalf("configuration: %v", err)
		}
		path = settings.CatalogPath
	}
	reg, err := config.LoadRegistry(path)
	if err != nil {
		log.Fatalf("registry %s: %v", path, err)
	}
	img, err := imaging.Open(*shot)
	if err != nil {
		log.Fatalf("open %s: %v", *shot, err)
	}
	m := reg.Layout
	b := img.Bounds()
	fmt.Printf("layout=%s screenshot=%dx%d tolerance=%.0f\n", m.Version, b.Dx(), b.Dy(), m.SentinelTolerance)

	drifted := 0
	for i, r := range m.SampleSentinels(img) {
		s := r.Sentinel
		status := "ok"
		switch {
		case !r.InBounds:
			status = "OUTSIDE"
			drifted++
		case !r.OK(m.SentinelTolerance):
			status = "DRIFT"
			drifted++
		}
		fmt.Printf("sentinel %d (%d,%d) want rgb(%d,%d,%d) got rgb(%d,%d,%d) delta=%.1f %s\n",
			i, s.X, s.Y, s.R, s.G, s.B, r.Got.R, r.Got.G, r.Got.B, r.Delta, status)
	}

	paths, err := m.DumpCrops(img, *out)
	if err != nil {
		log.Printf("WARN crop dump: %v", err)
	}
	fmt.Printf("wrote %d crops to %s\n", len(paths), *out)

	if *version == "" {
		if drifted > 0 {
			os.Exit(1)
		}
		return
	}
	next, err := m.Recalibrate(img, *version)
	if err != nil {
		log.Fatalf("recalibrate: %v", err)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"layout": next}); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
