package main

import (
	"fmt"
	"log"
	"os"

	"orderpreview/pkg/config"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/pipeline"
	"orderpreview/pkg/store"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadDotEnv()
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	// `./orderpreview migrate` runs AutoMigrate and exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		settings.AutoMigrate = true
		if initDB(settings) == nil {
			log.Fatal("migrate needs DB_DSN")
		}
		fmt.Println("migration completed")
		return
	}

	reg, err := config.LoadRegistry(settings.CatalogPath)
	if err != nil {
		log.Fatalf("registry %s: %v", settings.CatalogPath, err)
	}
	log.Printf("registry loaded layout=%s products=%d codes=%d", reg.Layout.Version, len(reg.Catalog.Products()), len(reg.Catalog.Codes()))

	svc := pipeline.New(settings, reg, ocr.TesseractRecognizer{})
	db := initDB(settings)
	if db != nil {
		svc.Sink = store.Sink{DB: db}
	}
	if settings.JWTSecret == "" {
		log.Printf("WARN JWT_SECRET is not set; API is unauthenticated")
	}

	r := gin.Default()
	setupRoutes(r, &server{svc: svc, db: db, secret: []byte(settings.JWTSecret)})
	if err := r.Run(":" + settings.Port); err != nil {
		log.Fatal(err)
	}
}
