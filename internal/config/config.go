// Package config loads and validates the grader's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"omr-grader/internal/alignment"
	"omr-grader/internal/features"
	"omr-grader/internal/marks"

	"gopkg.in/yaml.v3"
)

// Config is the complete, validated grader configuration.
type Config struct {
	Paths         PathsConfig      `yaml:"paths"`
	Exam          ExamConfig       `yaml:"exam"`
	ROI           ROIConfig        `yaml:"roi"`
	Features      FeaturesConfig   `yaml:"features"`
	Alignment     AlignmentConfig  `yaml:"alignment"`
	Processing    ProcessingConfig `yaml:"processing"`
	MarkThreshold int              `yaml:"mark_threshold"`
}

// PathsConfig names the default input, template and output locations.
type PathsConfig struct {
	Template  string `yaml:"template"`
	Input     string `yaml:"input"`
	OutputDir string `yaml:"output_dir"`
}

// ExamConfig describes the questions and the answer key.
type ExamConfig struct {
	NumQuestions       int   `yaml:"num_questions"`
	OptionsPerQuestion int   `yaml:"options_per_question"`
	AnswerKey          []int `yaml:"answer_key"`
}

// ROIConfig is the linear bubble layout in template pixels.
type ROIConfig struct {
	StartX int `yaml:"start_x"`
	StartY int `yaml:"start_y"`
	GapX   int `yaml:"gap_x"`
	GapY   int `yaml:"gap_y"`
	Radius int `yaml:"radius"`
}

// FeaturesConfig tunes correspondence search.
type FeaturesConfig struct {
	MaxFeatures int     `yaml:"max_features"`
	MatchRatio  float64 `yaml:"match_ratio"`
}

// AlignmentConfig tunes the RANSAC homography estimate.
type AlignmentConfig struct {
	ReprojThreshold float64 `yaml:"reproj_threshold"`
	MaxIterations   int     `yaml:"max_iterations"`
	Confidence      float64 `yaml:"confidence"`
	Seed            int64   `yaml:"seed"`
}

// ProcessingConfig tunes adaptive binarization.
type ProcessingConfig struct {
	BlockSize int     `yaml:"block_size"`
	CValue    float64 `yaml:"c_value"`
	Method    string  `yaml:"method"`
}

// Default returns the configuration matching the sheets produced by
// cmd/mkfixtures.
func Default() *Config {
	ransac := alignment.DefaultRANSACParams()
	feat := features.DefaultOptions()
	detect := marks.DefaultOptions()
	return &Config{
		Paths: PathsConfig{
			Template:  "data/template/template.png",
			Input:     "data/inputs/sample_sheet.png",
			OutputDir: "output",
		},
		Exam: ExamConfig{
			NumQuestions:       5,
			OptionsPerQuestion: 4,
			AnswerKey:          []int{0, 1, 0, 2, 3},
		},
		ROI: ROIConfig{
			StartX: 150,
			StartY: 250,
			GapX:   60,
			GapY:   60,
			Radius: 15,
		},
		Features: FeaturesConfig{
			MaxFeatures: feat.MaxFeatures,
			MatchRatio:  feat.MatchRatio,
		},
		Alignment: AlignmentConfig{
			ReprojThreshold: ransac.Threshold,
			MaxIterations:   ransac.MaxIterations,
			Confidence:      ransac.Confidence,
			Seed:            ransac.Seed,
		},
		Processing: ProcessingConfig{
			BlockSize: detect.Binarize.BlockSize,
			CValue:    detect.Binarize.C,
			Method:    detect.Binarize.Method.String(),
		},
		MarkThreshold: detect.Threshold,
	}
}

// Load reads the YAML file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Keys that
// do not name a config field are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// The default key must not leak into a file that sets its own.
	cfg.Exam.AnswerKey = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Exam.NumQuestions <= 0 {
		return fmt.Errorf("exam.num_questions must be positive, got %d", c.Exam.NumQuestions)
	}
	if c.Exam.OptionsPerQuestion < 2 {
		return fmt.Errorf("exam.options_per_question must be at least 2, got %d", c.Exam.OptionsPerQuestion)
	}
	if len(c.Exam.AnswerKey) == 0 {
		return fmt.Errorf("exam.answer_key is required")
	}
	if len(c.Exam.AnswerKey) != c.Exam.NumQuestions {
		return fmt.Errorf("exam.answer_key has %d entries, want %d (num_questions)",
			len(c.Exam.AnswerKey), c.Exam.NumQuestions)
	}
	for i, k := range c.Exam.AnswerKey {
		if k < 0 || k >= c.Exam.OptionsPerQuestion {
			return fmt.Errorf("exam.answer_key[%d] = %d is out of range [0,%d)", i, k, c.Exam.OptionsPerQuestion)
		}
	}
	if err := c.Grid().Validate(); err != nil {
		return fmt.Errorf("roi: %w", err)
	}
	if c.ROI.StartX < 0 || c.ROI.StartY < 0 {
		return fmt.Errorf("roi.start_x and roi.start_y must be >= 0")
	}
	if err := c.FeatureOptions().Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if c.Alignment.ReprojThreshold <= 0 {
		return fmt.Errorf("alignment.reproj_threshold must be positive, got %g", c.Alignment.ReprojThreshold)
	}
	if c.Alignment.MaxIterations <= 0 {
		return fmt.Errorf("alignment.max_iterations must be positive, got %d", c.Alignment.MaxIterations)
	}
	if c.Alignment.Confidence <= 0 || c.Alignment.Confidence >= 1 {
		return fmt.Errorf("alignment.confidence must be in (0,1), got %g", c.Alignment.Confidence)
	}
	bin, err := c.BinarizeParams()
	if err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	if err := bin.Validate(); err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	if c.MarkThreshold < 0 {
		return fmt.Errorf("mark_threshold must be >= 0, got %d", c.MarkThreshold)
	}
	return nil
}

// Grid returns the bubble layout.
func (c *Config) Grid() marks.Grid {
	return marks.Grid{
		Questions: c.Exam.NumQuestions,
		Options:   c.Exam.OptionsPerQuestion,
		StartX:    c.ROI.StartX,
		StartY:    c.ROI.StartY,
		GapX:      c.ROI.GapX,
		GapY:      c.ROI.GapY,
		Radius:    c.ROI.Radius,
	}
}

// FeatureOptions returns the correspondence search options.
func (c *Config) FeatureOptions() features.Options {
	return features.Options{
		MaxFeatures: c.Features.MaxFeatures,
		MatchRatio:  c.Features.MatchRatio,
	}
}

// RANSACParams returns the homography estimation parameters.
func (c *Config) RANSACParams() alignment.RANSACParams {
	return alignment.RANSACParams{
		Threshold:     c.Alignment.ReprojThreshold,
		MaxIterations: c.Alignment.MaxIterations,
		Confidence:    c.Alignment.Confidence,
		Seed:          c.Alignment.Seed,
	}
}

// BinarizeParams returns the adaptive threshold parameters.
func (c *Config) BinarizeParams() (marks.BinarizeParams, error) {
	method, err := marks.ParseMethod(c.Processing.Method)
	if err != nil {
		return marks.BinarizeParams{}, err
	}
	return marks.BinarizeParams{
		BlockSize: c.Processing.BlockSize,
		C:         c.Processing.CValue,
		Method:    method,
	}, nil
}
