package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/kothari1/NuFleet-AI-SOP/internal/config"
	"github.com/kothari1/NuFleet-AI-SOP/internal/gemini"
	"github.com/kothari1/NuFleet-AI-SOP/internal/pipeline"
)

type cliFlags struct {
	Video       string
	Context     string
	ContextFile string
	ConfigPath  string
	Output      string
	Model       string
	APIKey      string
	ListModels  bool
	Verbose     bool
}

func main() {
	flags := parseFlags()

	// .env is optional; real deployments set the key in the environment.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if flags.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if flags.Output != "" {
		cfg.OutputDir = flags.Output
	}
	if flags.Model != "" {
		cfg.Model = flags.Model
	}

	apiKey, err := config.APIKey(flags.APIKey)
	if err != nil {
		logger.Error("missing credentials", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gemini.NewClient(gemini.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout(),
		MaxRetries: uint64(cfg.MaxRetries),
	}, logger)

	if flags.ListModels {
		models, err := client.ListModels(ctx)
		if err != nil {
			logger.Error("list models failed", "error", err)
			os.Exit(1)
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return
	}

	if flags.Video == "" {
		fmt.Fprintln(os.Stderr, "Usage: sopgen --video path/to/video.mp4 [--context \"technician notes\"] [--config sopgen.yaml]")
		os.Exit(1)
	}

	userContext := flags.Context
	if flags.ContextFile != "" {
		data, err := os.ReadFile(flags.ContextFile)
		if err != nil {
			logger.Error("could not read context file", "error", err)
			os.Exit(1)
		}
		userContext = string(data)
	}

	processor := pipeline.New(cfg, client, nil, logger)

	started := time.Now()
	result, err := processor.Run(ctx, flags.Video, userContext)
	if err != nil {
		logger.Error("sop generation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("sop generated",
		"run", result.RunID,
		"steps", len(result.Document.Steps),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	for _, issue := range result.RenderIssues {
		logger.Warn("diagram dropped", "issue", issue)
	}
	fmt.Println(result)
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.Video, "video", "", "path to the maintenance video")
	flag.StringVar(&f.Context, "context", "", "technician observations to include in the prompt")
	flag.StringVar(&f.ContextFile, "context-file", "", "file holding technician observations (overrides --context)")
	flag.StringVar(&f.ConfigPath, "config", "sopgen.yaml", "path to config file")
	flag.StringVar(&f.Output, "output", "", "output directory (overrides config)")
	flag.StringVar(&f.Model, "model", "", "model id (overrides config)")
	flag.StringVar(&f.APIKey, "api-key", "", "Google AI API key (default: GOOGLE_API_KEY env)")
	flag.BoolVar(&f.ListModels, "list-models", false, "list models that support generateContent and exit")
	flag.BoolVar(&f.Verbose, "verbose", false, "debug logging")
	flag.Parse()
	return f
}
