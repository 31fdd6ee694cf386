// Package server exposes sheet grading over HTTP.
package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"omr-grader/internal/alignment"
	"omr-grader/internal/config"
	"omr-grader/internal/features"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/logging"
	"omr-grader/internal/pipeline"
	"omr-grader/internal/render"
	"omr-grader/internal/report"
	"omr-grader/internal/version"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"
)

// maxUploadBytes bounds the in-memory part of a multipart upload.
const maxUploadBytes = 32 << 20

// Server grades uploaded photos against one template and configuration.
type Server struct {
	mu           sync.RWMutex
	cfg          *config.Config
	template     gocv.Mat
	ownsTemplate bool // set once Swap has installed a template the server must close
	templatePath string
	logger       *log.Logger
}

// New creates a server. The template Mat is only read; the caller keeps
// ownership and must keep it open while the server runs.
func New(cfg *config.Config, template gocv.Mat, templatePath string, logger *log.Logger) *Server {
	return &Server{
		cfg:          cfg,
		template:     template,
		templatePath: templatePath,
		logger:       logging.OrDiscard(logger),
	}
}

// Config returns the configuration currently used for grading.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Swap replaces the configuration and, when template is non-nil, the
// template and its path. The server takes ownership of a swapped-in
// template. In-flight requests finish with the old pair.
func (s *Server) Swap(cfg *config.Config, template *gocv.Mat, templatePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg != nil {
		s.cfg = cfg
	}
	if template != nil {
		if s.ownsTemplate {
			s.template.Close()
		}
		s.template = *template
		s.templatePath = templatePath
		s.ownsTemplate = true
	}
}

// TemplatePath returns the path of the template currently used for grading.
func (s *Server) TemplatePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templatePath
}

// Close releases a template installed by Swap.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsTemplate {
		s.template.Close()
		s.ownsTemplate = false
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/health", s.healthHandler)
	r.POST("/grade", s.gradeHandler)
	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Printf("server: listening on %s", addr)
	return s.Router().Run(addr)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

// GradeResponse is the body returned by POST /grade.
type GradeResponse struct {
	*report.File
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

func (s *Server) gradeHandler(c *gin.Context) {
	fh, err := c.FormFile("sheet")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing multipart file field \"sheet\""})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	img, err := omrimage.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input, err := omrimage.ToMat(img)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer input.Close()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out, err := pipeline.GradeSheet(input, s.template, s.cfg, s.logger)
	if err != nil {
		s.logger.Printf("server: grading %s failed: %v", fh.Filename, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer out.Close()

	resp := GradeResponse{File: report.New(fh.Filename, s.templatePath, out)}
	if c.Query("annotate") == "true" {
		encoded, err := encodeAnnotated(out, s.cfg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.ImageBase64 = encoded
		resp.MimeType = "image/png"
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps pipeline failures to HTTP status codes. A photo the
// pipeline cannot register is the client's problem, not the server's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, features.ErrFeatureDetectionFailed),
		errors.Is(err, alignment.ErrInsufficientMatches),
		errors.Is(err, alignment.ErrAlignmentFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func encodeAnnotated(out *pipeline.Outcome, cfg *config.Config) (string, error) {
	annotated := render.Annotate(out.Rectified(), out.Report, cfg.Grid())
	defer annotated.Close()

	img, err := omrimage.FromMat(annotated)
	if err != nil {
		return "", fmt.Errorf("convert annotated image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode annotated image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
