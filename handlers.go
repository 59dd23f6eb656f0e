package main

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"orderpreview/models"
	"orderpreview/pkg/order"
	"orderpreview/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxUploadSize = 20 << 20

// server carries what the handlers need; it is built once in main.
type server struct {
	svc    *pipeline.Service
	db     *gorm.DB
	secret []byte
}

func setupRoutes(r *gin.Engine, s *server) {
	r.MaxMultipartMemory = 32 << 20
	r.GET("/healthz", s.healthHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(s.secret))
	authGroup.POST("/extract", s.extractHandler)
	authGroup.POST("/preview", s.previewHandler)
	authGroup.POST("/preview/tsv", s.previewTSVHandler)
	authGroup.GET("/previews/:id", s.previewFileHandler)
	authGroup.GET("/runs", s.listRunsHandler)
	authGroup.GET("/runs/:id", s.getRunHandler)
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"layout_version": s.svc.Registry.Layout.Version,
		"products":       len(s.svc.Registry.Catalog.Products()),
		"database":       s.db != nil,
	})
}

// extractHandler runs OCR only and returns the corrected rows.
func (s *server) extractHandler(c *gin.Context) {
	req, ok := s.screenshotRequest(c)
	if !ok {
		return
	}
	resp, err := s.svc.Extract(c.Request.Context(), req)
	if err != nil {
		respondPipelineError(c, resp, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             resp.ID,
		"layout_version": resp.LayoutVersion,
		"rows":           resp.Rows,
		"warnings":       resp.Warnings,
		"corrections":    resp.Corrections,
		"extras":         resp.Extras,
		"stats":          resp.Stats,
	})
}

// previewHandler extracts the order from the uploaded screenshot and renders it.
func (s *server) previewHandler(c *gin.Context) {
	req, ok := s.screenshotRequest(c)
	if !ok {
		return
	}
	resp, err := s.svc.Run(c.Request.Context(), req)
	if err != nil {
		respondPipelineError(c, resp, err)
		return
	}
	c.JSON(http.StatusOK, previewBody(resp))
}

// previewTSVHandler renders an order given as a Label/Value field dump.
func (s *server) previewTSVHandler(c *gin.Context) {
	file, err := c.FormFile("dump")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump missing"})
		return
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump unreadable"})
		return
	}
	defer f.Close()
	dump, err := order.ParseTSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": pipeline.KindBadInput})
		return
	}
	root, err := s.lookupRoot(c.PostForm("root"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": pipeline.KindBadInput})
		return
	}
	req := pipeline.Request{
		ID:         uuid.NewString(),
		LookupRoot: root,
		Background: s.backgroundPath(c.PostForm("background")),
		DumpName:   file.Filename,
	}
	resp, err := s.svc.RunRows(c.Request.Context(), req, dump)
	if err != nil {
		respondPipelineError(c, resp, err)
		return
	}
	c.JSON(http.StatusOK, previewBody(resp))
}

// previewFileHandler serves a rendered preview by run id.
func (s *server) previewFileHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p := filepath.Join(s.svc.Settings.OutputDir, id+".jpg")
	if _, err := os.Stat(p); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(p)
}

// listRunsHandler returns the most recent runs, optionally filtered by status.
func (s *server) listRunsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	q := s.db.Model(&models.PreviewRun{})
	if st := c.Query("status"); st != "" {
		q = q.Where("status = ?", st)
	}
	var runs []models.PreviewRun
	if err := q.Order("created_at desc").Limit(limit).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, runs)
}

// getRunHandler returns one run with its warnings, corrections and timings.
func (s *server) getRunHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	var run models.PreviewRun
	err := s.db.Preload("Warnings").Preload("Corrections").Preload("Timings").
		Where("id = ?", c.Param("id")).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// screenshotRequest stores the uploaded screenshot in the work dir and builds
// the pipeline request. It writes the error response itself.
func (s *server) screenshotRequest(c *gin.Context) (pipeline.Request, bool) {
	file, err := c.FormFile("screenshot")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "screenshot missing"})
		return pipeline.Request{}, false
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "screenshot too large (max 20MB)"})
		return pipeline.Request{}, false
	}
	root, err := s.lookupRoot(c.PostForm("root"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": pipeline.KindBadInput})
		return pipeline.Request{}, false
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported screenshot type " + ext})
		return pipeline.Request{}, false
	}
	id := uuid.NewString()
	dir := filepath.Join(s.svc.Settings.WorkDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return pipeline.Request{}, false
	}
	dst := filepath.Join(dir, id+ext)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return pipeline.Request{}, false
	}
	return pipeline.Request{
		ID:         id,
		Screenshot: dst,
		LookupRoot: root,
		Background: s.backgroundPath(c.PostForm("background")),
	}, true
}

// backgroundPath resolves a background selection to a file under the assets
// backgrounds folder. Only the base name is honoured.
func (s *server) backgroundPath(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return filepath.Join(s.svc.Settings.AssetsDir, "backgrounds", filepath.Base(name))
}

// lookupRoot narrows the image search to a folder under LOOKUP_ROOT. A
// relative name is taken from LOOKUP_ROOT; an absolute one must lie inside it.
// An empty name keeps the configured root.
func (s *server) lookupRoot(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	base := s.svc.Settings.LookupRoot
	if base == "" {
		return "", errors.New("root cannot be chosen when LOOKUP_ROOT is not configured")
	}
	base = filepath.Clean(base)
	p := filepath.Clean(name)
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("root must lie under LOOKUP_ROOT")
	}
	return p, nil
}

func previewBody(resp *pipeline.Response) gin.H {
	return gin.H{
		"id":             resp.ID,
		"layout_version": resp.LayoutVersion,
		"preview_path":   resp.PreviewPath,
		"preview_url":    "/previews/" + resp.ID,
		"rows":           resp.Resolved,
		"placed":         resp.Placed,
		"warnings":       resp.Warnings,
		"corrections":    resp.Corrections,
		"extras":         resp.Extras,
		"stats":          resp.Stats,
		"timings":        resp.Timings,
	}
}

// respondPipelineError maps global failures to distinct, actionable responses.
func respondPipelineError(c *gin.Context, resp *pipeline.Response, err error) {
	kind := pipeline.Kind(err)
	status := http.StatusInternalServerError
	switch kind {
	case pipeline.KindLayoutDrift:
		status = http.StatusConflict
	case pipeline.KindLayoutOverflow, pipeline.KindEmptyOrder:
		status = http.StatusUnprocessableEntity
	case pipeline.KindBadInput:
		status = http.StatusBadRequest
	}
	body := gin.H{"error": err.Error(), "kind": kind}
	if resp != nil {
		body["id"] = resp.ID
		body["warnings"] = resp.Warnings
	}
	c.JSON(status, body)
}
