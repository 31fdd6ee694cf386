// Package main provides the command-line entry point for grading one answer sheet.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"omr-grader/internal/alignment"
	"omr-grader/internal/config"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/logging"
	"omr-grader/internal/pipeline"
	"omr-grader/internal/render"
	"omr-grader/internal/report"
	"omr-grader/internal/version"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	input := flag.String("input", "", "Path to input image (overrides config)")
	template := flag.String("template", "", "Path to template image (overrides config)")
	outDir := flag.String("out", "", "Output directory (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := logging.Stderr("")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *input != "" {
		cfg.Paths.Input = *input
	}
	if *template != "" {
		cfg.Paths.Template = *template
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}

	if err := run(cfg, logger); err != nil {
		logger.Printf("Grading failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	logger.Printf("Loading input: %s", cfg.Paths.Input)
	input, err := omrimage.LoadMat(cfg.Paths.Input)
	if err != nil {
		return err
	}
	defer input.Close()

	logger.Printf("Loading template: %s", cfg.Paths.Template)
	tmpl, err := omrimage.LoadMat(cfg.Paths.Template)
	if err != nil {
		return err
	}
	defer tmpl.Close()

	out, err := pipeline.GradeSheet(input, tmpl, cfg, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	outPath := func(name string) string { return filepath.Join(cfg.Paths.OutputDir, name) }

	if err := omrimage.SaveMat(outPath("debug_aligned.png"), out.Rectified()); err != nil {
		return err
	}
	if err := omrimage.SaveMat(outPath("debug_threshold.png"), out.Binary); err != nil {
		return err
	}
	overlay := alignment.CreateOverlay(tmpl, out.Rectified(), 0.5)
	defer overlay.Close()
	if err := omrimage.SaveMat(outPath("debug_overlay.png"), overlay); err != nil {
		return err
	}

	logger.Printf("GRADING COMPLETE")
	logger.Printf("Score: %d/%d (%.2f%%)", out.Report.Total, out.Report.Questions, out.Report.Percent())

	fmt.Println("\n--- Detailed Results ---")
	if err := report.WriteTable(os.Stdout, out.Report); err != nil {
		return err
	}

	annotated := render.Annotate(out.Rectified(), out.Report, cfg.Grid())
	defer annotated.Close()
	resultPath := outPath("result.png")
	if err := omrimage.SaveMat(resultPath, annotated); err != nil {
		return err
	}
	logger.Printf("Result image saved to %s", resultPath)

	jsonPath := outPath("result.json")
	if err := report.New(cfg.Paths.Input, cfg.Paths.Template, out).Save(jsonPath); err != nil {
		return fmt.Errorf("save %s: %w", jsonPath, err)
	}
	logger.Printf("Result file saved to %s", jsonPath)
	return nil
}
