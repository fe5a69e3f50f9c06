package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/cuongbtq/media-relay/internal/config"
	"github.com/cuongbtq/media-relay/internal/downloader/domain"
	"github.com/cuongbtq/media-relay/internal/downloader/runner"
	"github.com/cuongbtq/media-relay/internal/downloader/storage"
	"github.com/cuongbtq/media-relay/internal/downloader/supervisor"
	"github.com/cuongbtq/media-relay/shared/logger"
)

// localChatID identifies the terminal session to the supervisor
const localChatID int64 = 1

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("RELAY_SERVICE_CONFIG_PATH"), "Path to configuration file (optional)")
	url := flag.String("url", "", "Media URL to download")
	format := flag.String("format", "video", "Output format: video or audio")
	downloadsDir := flag.String("downloads", "", "Override download.output_dir")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *url == "" {
		flag.Usage()
		return fmt.Errorf("-url is required")
	}
	chosen, err := domain.ParseFormat(*format)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if *downloadsDir != "" {
		cfg.Download.OutputDir = *downloadsDir
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	appLogger, err := logger.New(&logger.Config{Level: level, Format: "console", Output: "stderr", TimeFormat: time.TimeOnly})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := storage.NewStorage(cfg.Download.OutputDir, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	sup := supervisor.New(&supervisor.Config{
		Logger: appLogger.Logger,
		Runner: runner.NewRunner(&runner.Config{
			Logger:       appLogger.Logger,
			Binary:       cfg.Extractor.Binary,
			ProbeTimeout: cfg.Extractor.ProbeTimeout,
			AudioFormat:  cfg.Download.AudioFormat,
			VideoFormat:  cfg.Download.VideoFormat,
			Proxy:        cfg.Proxy.URL(),
		}),
		Storage:            store,
		MaxConcurrent:      1,
		DownloadTimeout:    cfg.Limits.DownloadTimeout(),
		MaxDurationMinutes: cfg.Download.MaxDurationMinutes,
		Quality:            cfg.Download.Quality,
		ShowProgress:       true,
		ProgressInterval:   cfg.Download.ProgressInterval(),
		EnabledSites:       cfg.SupportedSites,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep := newBarReporter()

	fmt.Fprintf(os.Stderr, "Probing %s\n", *url)
	result, err := sup.Submit(ctx, localChatID, *url, rep)
	if err != nil {
		return fmt.Errorf("%s", domain.UserMessage(err))
	}
	fmt.Fprintf(os.Stderr, "%s (%.1f min)\n", result.Info.Title, result.Info.DurationMinutes())

	rep.start(result.Info.EstimatedSize)
	if result.AwaitingChoice {
		if err := sup.ChooseFormat(ctx, localChatID, chosen, rep); err != nil {
			return fmt.Errorf("%s", domain.UserMessage(err))
		}
	}

	var outcome error
	select {
	case artifact := <-rep.completed:
		rep.finish()
		fmt.Printf("%s (%.1f MB)\n", artifact.Path, float64(artifact.Size)/(1024*1024))
	case msg := <-rep.failed:
		rep.finish()
		outcome = fmt.Errorf("%s", msg)
	case <-ctx.Done():
		_ = sup.Cancel(localChatID)
		outcome = fmt.Errorf("interrupted")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Shutdown incomplete", slog.Any("error", err))
	}
	return outcome
}

// barReporter renders supervisor progress as a byte progress bar
type barReporter struct {
	bar       *progressbar.ProgressBar
	completed chan domain.Artifact
	failed    chan string
}

func newBarReporter() *barReporter {
	return &barReporter{
		completed: make(chan domain.Artifact, 1),
		failed:    make(chan string, 1),
	}
}

func (r *barReporter) start(estimated int64) {
	total := estimated
	if total <= 0 {
		total = -1
	}
	r.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *barReporter) Progress(update domain.ProgressUpdate) error {
	if r.bar == nil {
		return nil
	}
	return r.bar.Set64(update.Bytes)
}

func (r *barReporter) Completed(artifact domain.Artifact) {
	r.completed <- artifact
}

func (r *barReporter) Failed(message string) {
	r.failed <- message
}

func (r *barReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
