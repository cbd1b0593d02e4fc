package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"

	"videoqa/config"
	"videoqa/generator"
	"videoqa/index"
	"videoqa/search"
	"videoqa/storage"
	"videoqa/transcript"
)

func main() {
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(os.Args[2:], logger)
	case "ask":
		err = runAsk(os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  videoqa index [-config config.json] [-transcribe] [video.mp4]
  videoqa ask   [-config config.json] [-k 3] [-threshold 0.7] "question"`)
}

func runIndex(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.json")
	transcribe := fs.Bool("transcribe", false, "transcribe videos that have no caption file")
	fs.Parse(args)

	ctx := context.Background()
	cfg, store, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	processor := transcript.NewProcessor(cfg.VideosDir, cfg.TranscriptsDir)
	var transcriber transcript.Transcriber
	if *transcribe {
		if !cfg.HasValidAPI() {
			return fmt.Errorf("transcription requires an API key")
		}
		transcriber = transcript.NewWhisperTranscriber(openaiClient(cfg), cfg.TranscriptsDir)
	}
	indexer := index.New(store, processor, transcriber, logger)

	if fs.NArg() > 0 {
		count, err := indexer.Index(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if count == 0 {
			logger.Info("already indexed", "video", fs.Arg(0))
		} else {
			logger.Info("indexed", "video", fs.Arg(0), "segments", count)
		}
		return nil
	}

	report, err := indexer.IndexAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("batch indexing finished",
		"indexed", report.Indexed, "skipped", report.Skipped, "failed", report.Failed)
	for video, ferr := range report.Failures {
		logger.Warn("video failed", "video", video, "error", ferr)
	}
	return nil
}

func runAsk(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.json")
	k := fs.Int("k", 3, "number of segments to retrieve")
	threshold := fs.Float64("threshold", 0.7, "minimum similarity score")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("ask requires a question")
	}
	query := fs.Arg(0)

	ctx := context.Background()
	cfg, store, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	if !cfg.HasValidAPI() {
		return fmt.Errorf("answering requires an API key")
	}

	engine := search.NewEngine(store, logger)
	synth := generator.NewSynthesizer(engine, generator.NewOpenAIChatClient(cfg), logger)

	resp := synth.Answer(ctx, query, *k, *threshold)
	fmt.Println(resp.Answer)
	if resp.HasError() {
		return fmt.Errorf("%s", resp.Err)
	}

	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, window := range search.Consolidate(resp.Sources) {
			fmt.Printf("  %s  [%.0fs-%.0fs]  score=%.2f\n",
				synth.VideoTitle(window.Video), window.Start, window.End, window.Score)
		}
	}
	return nil
}

// setup loads configuration and connects the vector store, waiting for
// it to come up.
func setup(ctx context.Context, configPath string) (*config.Config, storage.VectorStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	store, err := storage.NewVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := store.WaitReady(ctx); err != nil {
		store.Close(ctx)
		return nil, nil, err
	}
	return cfg, store, nil
}

func openaiClient(cfg *config.Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
