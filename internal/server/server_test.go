package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"omr-grader/internal/alignment"
	"omr-grader/internal/config"
	"omr-grader/internal/features"
	"omr-grader/internal/fixture"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/marks"
	"omr-grader/internal/scoring"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *fixture.Sheet) {
	t.Helper()
	sheet, err := fixture.Generate(fixture.DefaultLayout(), []marks.Answer{0, 1, 0, 2, 3})
	require.NoError(t, err)
	t.Cleanup(sheet.Close)
	return New(config.Default(), sheet.Template, "template.png", nil), sheet
}

func uploadRequest(t *testing.T, target, field string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, "sheet.png")
		require.NoError(t, err)
		_, err = part.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func encodePNG(t *testing.T, m gocv.Mat) []byte {
	t.Helper()
	img, err := omrimage.FromMat(m)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestGradeMissingFile(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "/grade", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradeUndecodableFile(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "/grade", "sheet", []byte("not a png")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradeBlankPhoto(t *testing.T) {
	srv, _ := newTestServer(t)
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 800, 600, gocv.MatTypeCV8UC3)
	defer blank.Close()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "/grade", "sheet", encodePNG(t, blank)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGradePhoto(t *testing.T) {
	srv, sheet := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, "/grade?annotate=true", "sheet", encodePNG(t, sheet.Photo)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.File)
	assert.Equal(t, 5, resp.Score)
	assert.Equal(t, 5, resp.Questions)
	assert.Equal(t, "sheet.png", resp.Input)
	assert.Equal(t, "template.png", resp.Template)
	assert.Equal(t, "image/png", resp.MimeType)
	assert.NotEmpty(t, resp.ImageBase64)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{features.ErrFeatureDetectionFailed, http.StatusUnprocessableEntity},
		{fmt.Errorf("align: %w", alignment.ErrInsufficientMatches), http.StatusUnprocessableEntity},
		{fmt.Errorf("align: %w", alignment.ErrAlignmentFailed), http.StatusUnprocessableEntity},
		{fmt.Errorf("score: %w", scoring.ErrConfigurationMismatch), http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
