// Package pipeline runs the full grading sequence for one sheet:
// correspondence search, alignment, mark detection and scoring.
package pipeline

import (
	"fmt"
	"log"

	"omr-grader/internal/alignment"
	"omr-grader/internal/config"
	"omr-grader/internal/features"
	"omr-grader/internal/logging"
	"omr-grader/internal/marks"
	"omr-grader/internal/scoring"

	"gocv.io/x/gocv"
)

// Outcome holds everything produced by grading one sheet.
type Outcome struct {
	Report          *scoring.Report
	Answers         []marks.Answer
	Evidence        []marks.OptionEvidence
	Correspondences int
	Alignment       *alignment.Result
	Binary          gocv.Mat
}

// Rectified returns the sheet warped into the template frame.
func (o *Outcome) Rectified() gocv.Mat {
	return o.Alignment.Rectified
}

// Close releases the rectified and binarized images.
func (o *Outcome) Close() {
	if o == nil {
		return
	}
	o.Alignment.Close()
	o.Binary.Close()
}

// GradeSheet aligns input to template, detects the marked bubbles and scores
// them against cfg's answer key. Any stage failure aborts the sheet; the
// returned error wraps the stage's sentinel error.
func GradeSheet(input, template gocv.Mat, cfg *config.Config, logger *log.Logger) (*Outcome, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger = logging.OrDiscard(logger)

	featOpts := cfg.FeatureOptions()
	featOpts.Logger = logger
	corr, err := features.FindCorrespondences(input, template, featOpts)
	if err != nil {
		return nil, fmt.Errorf("find correspondences: %w", err)
	}

	aligned, err := alignment.Align(input, template, corr, alignment.Options{
		RANSAC: cfg.RANSACParams(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}

	bin, err := cfg.BinarizeParams()
	if err != nil {
		aligned.Close()
		return nil, fmt.Errorf("detect marks: %w", err)
	}
	detection, err := marks.Detect(aligned.Rectified, cfg.Grid(), marks.Options{
		Binarize:  bin,
		Threshold: cfg.MarkThreshold,
		Logger:    logger,
	})
	if err != nil {
		aligned.Close()
		return nil, fmt.Errorf("detect marks: %w", err)
	}

	report, err := scoring.Score(detection.Answers, cfg.Exam.AnswerKey)
	if err != nil {
		aligned.Close()
		detection.Close()
		return nil, fmt.Errorf("score: %w", err)
	}
	report.MarkAmbiguous(detection.Ambiguous)

	logger.Printf("pipeline: score %d/%d (%.0f%%)", report.Total, report.Questions, report.Percent())

	return &Outcome{
		Report:          report,
		Answers:         detection.Answers,
		Evidence:        detection.Evidence,
		Correspondences: len(corr),
		Alignment:       aligned,
		Binary:          detection.Binary,
	}, nil
}
