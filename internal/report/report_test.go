package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"omr-grader/internal/alignment"
	"omr-grader/internal/marks"
	"omr-grader/internal/pipeline"
	"omr-grader/internal/scoring"
	"omr-grader/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(t *testing.T) *scoring.Report {
	t.Helper()
	r, err := scoring.Score([]marks.Answer{0, marks.NoAnswer, 3, 2}, []int{0, 1, 2, 2})
	require.NoError(t, err)
	r.MarkAmbiguous([]bool{false, false, false, true})
	return r
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleReport(t)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Q#    User       Correct    Status", strings.TrimRight(lines[0], " "))
	assert.Equal(t, strings.Repeat("-", 40), lines[1])
	assert.Equal(t, []string{"1", "A", "A", "OK"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"2", "N/A", "B", "WRONG"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"3", "D", "C", "WRONG"}, strings.Fields(lines[4]))
	assert.Equal(t, []string{"4", "C", "C", "OK", "(multi)"}, strings.Fields(lines[5]))
	assert.Equal(t, "Score: 2/4 (50.00%)", lines[7])
}

func TestNewSaveLoad(t *testing.T) {
	h := geometry.Homography{{1, 0, 5}, {0, 1, -3}, {0, 0, 1}}
	out := &pipeline.Outcome{
		Report:  sampleReport(t),
		Answers: []marks.Answer{0, marks.NoAnswer, 3, 2},
		Evidence: []marks.OptionEvidence{
			{Question: 0, Option: 0, X: 150, Y: 250, Count: 690},
		},
		Correspondences: 120,
		Alignment: &alignment.Result{
			Transform: h,
			Matches:   120,
			Inliers:   []int{1, 2, 3},
			MeanError: 0.8,
		},
	}

	f := New("photo.png", "template.png", out)
	assert.Equal(t, FormatVersion, f.Version)
	assert.Equal(t, 2, f.Score)
	assert.Equal(t, 4, f.Questions)
	assert.Equal(t, 3, f.Alignment.Inliers)

	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, f.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", loaded.Input)
	assert.Equal(t, h, loaded.Alignment.Transform)
	assert.Equal(t, f.Results, loaded.Results)
	assert.Equal(t, marks.NoAnswer, loaded.Results[1].Detected)
	assert.True(t, f.Created.Equal(loaded.Created))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "reading result file")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestSaveErrors(t *testing.T) {
	f := &File{Version: FormatVersion}
	err := f.Save(filepath.Join(t.TempDir(), "no-such-dir", "result.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "writing result file")
}
