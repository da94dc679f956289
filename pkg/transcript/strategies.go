package transcript

import (
	"context"

	"github.com/z-wentao/tubenotes/pkg/models"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

// RegionalVariants are tried in this order after the plain en fetch.
var RegionalVariants = []string{"en-US", "en-GB", "en-CA", "en-AU"}

// CaptionFetcher downloads captions directly. An empty lang means the
// video's default track.
type CaptionFetcher interface {
	FetchCaptions(ctx context.Context, videoID, lang string) ([]models.Segment, error)
}

// CaptionScraper extracts captions by a different route, treating lang as
// a preference.
type CaptionScraper interface {
	ScrapeCaptions(ctx context.Context, videoID, lang string) ([]models.Segment, error)
}

// PaidScraper is a managed scraping service that needs a credential.
type PaidScraper interface {
	Configured() bool
	FetchTranscript(ctx context.Context, videoURL string) ([]models.Segment, error)
}

// Sources are the collaborators behind the default chain. Nil members are
// left out of the chain.
type Sources struct {
	Captions CaptionFetcher
	Scraper  CaptionScraper
	Paid     PaidScraper
}

// DefaultStrategies builds the standard chain: default captions, forced
// English, the regional variants, the page scraper and the paid service.
func DefaultStrategies(src Sources) []Strategy {
	var chain []Strategy

	if src.Captions != nil {
		chain = append(chain,
			captionStrategy("captions-primary", SourceCaptionsPrimary, src.Captions, ""),
			captionStrategy("captions-en", SourceCaptionsEnglish, src.Captions, "en"),
		)
		for _, lang := range RegionalVariants {
			chain = append(chain, captionStrategy("captions-"+lang, SourceLanguageVariant, src.Captions, lang))
		}
	}

	if src.Scraper != nil {
		scraper := src.Scraper
		chain = append(chain, Strategy{
			Name:   "scraper",
			Source: SourceScraperFallback,
			Fetch: func(ctx context.Context, videoID string) ([]models.Segment, error) {
				return scraper.ScrapeCaptions(ctx, videoID, "en")
			},
		})
	}

	if src.Paid != nil {
		paid := src.Paid
		chain = append(chain, Strategy{
			Name:    "apify",
			Source:  SourcePaidScraper,
			Enabled: paid.Configured,
			Fetch: func(ctx context.Context, videoID string) ([]models.Segment, error) {
				return paid.FetchTranscript(ctx, youtube.WatchURL(videoID))
			},
		})
	}

	return chain
}

func captionStrategy(name string, source Source, f CaptionFetcher, lang string) Strategy {
	return Strategy{
		Name:   name,
		Source: source,
		Fetch: func(ctx context.Context, videoID string) ([]models.Segment, error) {
			return f.FetchCaptions(ctx, videoID, lang)
		},
	}
}
