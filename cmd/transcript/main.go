// Command transcript runs the transcript fallback chain for one video and
// prints the result, without summarizing anything.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/z-wentao/tubenotes/pkg/apify"
	"github.com/z-wentao/tubenotes/pkg/config"
	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/subtitle"
	"github.com/z-wentao/tubenotes/pkg/transcript"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	format := flag.String("format", "text", "output format: text, srt or vtt")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	verbose := flag.Bool("v", false, "log every strategy attempt")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: transcript [flags] <youtube url or video id>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *format != "text" && *format != "srt" && *format != "vtt" {
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		os.Exit(2)
	}

	videoID, ok := youtube.ExtractVideoID(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "not a YouTube URL or video id: %s\n", flag.Arg(0))
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, segments := acquire(ctx, cfg, logger, videoID)
	if !res.Found() {
		fmt.Fprintf(os.Stderr, "no transcript for %s\n", videoID)
		printAttempts(res.Attempts)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "source: %s (%s), %d segments\n", res.Source, res.Strategy, res.Segments)
	if *verbose {
		printAttempts(res.Attempts)
	}

	switch *format {
	case "srt":
		fmt.Print(subtitle.RenderSRT(segments))
	case "vtt":
		fmt.Print(subtitle.RenderVTT(segments))
	default:
		fmt.Println(res.Text)
	}
}

// acquire runs the default chain and also returns the winning strategy's
// timed segments, which the text result drops.
func acquire(ctx context.Context, cfg *config.Config, logger *slog.Logger, videoID string) (transcript.Result, []models.Segment) {
	captions := youtube.NewCaptionClient(&http.Client{Timeout: cfg.YouTube.Timeout})
	paid := apify.NewClient(apify.Config{
		Token:        cfg.Apify.APIKey,
		TaskID:       cfg.Apify.TaskID,
		PollInterval: cfg.Apify.PollInterval,
		WaitTimeout:  cfg.Apify.WaitTimeout,
	})

	var winner []models.Segment
	chain := transcript.DefaultStrategies(transcript.Sources{Captions: captions, Scraper: captions, Paid: paid})
	for i := range chain {
		fetch := chain[i].Fetch
		chain[i].Fetch = func(ctx context.Context, id string) ([]models.Segment, error) {
			segs, err := fetch(ctx, id)
			if err == nil {
				winner = segs
			}
			return segs, err
		}
	}

	res := transcript.NewAcquirer(chain, transcript.WithLogger(logger)).Acquire(ctx, videoID)
	return res, winner
}

func printAttempts(attempts []transcript.Attempt) {
	for _, a := range attempts {
		line := fmt.Sprintf("  %-28s %-8s %v", a.Strategy, a.Outcome, a.Elapsed.Round(time.Millisecond))
		if a.Error != "" {
			line += "  " + a.Error
		}
		fmt.Fprintln(os.Stderr, line)
	}
}
