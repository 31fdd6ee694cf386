// Command omrserver serves sheet grading over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"omr-grader/internal/config"
	omrimage "omr-grader/internal/image"
	"omr-grader/internal/logging"
	"omr-grader/internal/server"
	"omr-grader/internal/version"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	template := flag.String("template", "", "Path to template image (overrides config)")
	addr := flag.String("addr", ":8080", "Listen address")
	release := flag.Bool("release", false, "Run gin in release mode")
	reload := flag.Duration("reload", time.Second, "Settle time before reloading a changed config/template (0 disables)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *release {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.Stderr("")
	logger.Printf("Starting %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *template != "" {
		cfg.Paths.Template = *template
	}

	tmpl, err := omrimage.LoadMat(cfg.Paths.Template)
	if err != nil {
		log.Fatalf("Failed to load template: %v", err)
	}
	defer tmpl.Close()

	srv := server.New(cfg, tmpl, cfg.Paths.Template, logger)
	defer srv.Close()

	if *reload > 0 {
		reloader, err := server.NewReloader(srv, *configPath, *template, *reload)
		if err != nil {
			log.Fatalf("Failed to watch config: %v", err)
		}
		if err := reloader.Start(); err != nil {
			log.Fatalf("Failed to watch config: %v", err)
		}
		defer reloader.Stop()
	}

	if err := srv.Run(*addr); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}
