// Command aligntest runs correspondence search and alignment on a photo and
// its template and prints the registration quality.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"omr-grader/internal/alignment"
	"omr-grader/internal/config"
	"omr-grader/internal/features"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/logging"
	"omr-grader/internal/version"
	"omr-grader/pkg/geometry"
)

func main() {
	input := flag.String("i", "", "Path to input photo")
	template := flag.String("t", "", "Path to template image")
	configPath := flag.String("config", "", "Optional config file for feature/RANSAC settings")
	output := flag.String("o", "", "Write the rectified image here")
	worst := flag.Int("n", 10, "Number of worst inlier residuals to print")
	verbose := flag.Bool("v", false, "Log pipeline progress to stderr")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *input == "" || *template == "" {
		fmt.Println("Usage: aligntest -i <photo> -t <template> [-config <file>] [-o <out.png>]")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	src, err := omrimage.LoadMat(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load input: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	tmpl, err := omrimage.LoadMat(*template)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load template: %v\n", err)
		os.Exit(1)
	}
	defer tmpl.Close()

	featOpts := cfg.FeatureOptions()
	alignOpts := alignment.Options{RANSAC: cfg.RANSACParams()}
	if *verbose {
		logger := logging.Stderr("aligntest: ")
		featOpts.Logger = logger
		alignOpts.Logger = logger
	}

	fmt.Printf("=== Correspondences ===\n")
	corr, err := features.FindCorrespondences(src, tmpl, featOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Feature matching failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Good matches: %d\n", len(corr))

	fmt.Printf("\n=== Alignment ===\n")
	result, err := alignment.Align(src, tmpl, corr, alignOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Alignment failed: %v\n", err)
		os.Exit(1)
	}
	defer result.Close()

	fmt.Printf("Inliers: %d/%d (%.1f%%)\n", len(result.Inliers), result.Matches,
		100*float64(len(result.Inliers))/float64(result.Matches))
	fmt.Printf("Mean reprojection error: %.2f px\n", result.MeanError)
	fmt.Printf("Homography (photo -> template):\n")
	for _, row := range result.Transform {
		fmt.Printf("  [%12.6f %12.6f %12.4f]\n", row[0], row[1], row[2])
	}

	printResiduals(corr, result, *worst)

	if *output != "" {
		if err := omrimage.SaveMat(*output, result.Rectified); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save rectified image: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nRectified image written to %s\n", *output)
	}
}

func printResiduals(corr []features.Correspondence, result *alignment.Result, n int) {
	if len(result.Inliers) == 0 || n <= 0 {
		return
	}
	type entry struct {
		src geometry.Point2D
		err float64
	}
	entries := make([]entry, 0, len(result.Inliers))
	for _, idx := range result.Inliers {
		c := corr[idx]
		mapped, ok := result.Transform.Apply(c.Source)
		if !ok {
			continue
		}
		entries = append(entries, entry{c.Source, mapped.Distance(c.Target)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].err > entries[j].err })
	if len(entries) > n {
		entries = entries[:n]
	}

	fmt.Printf("\nWorst inlier residuals:\n")
	for _, e := range entries {
		fmt.Printf("  X=%6.1f Y=%6.1f  err=%.2f px\n", e.src.X, e.src.Y, e.err)
	}
}
