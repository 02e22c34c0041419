package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/anki"
	"github.com/japaniel/sieve/pkg/cognates"
	"github.com/japaniel/sieve/pkg/config"
	"github.com/japaniel/sieve/pkg/knowledge"
	"github.com/japaniel/sieve/pkg/known"
	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/metrics"
	"github.com/japaniel/sieve/pkg/store"
)

// app holds the components one command runs against.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	out     io.Writer
	metrics *metrics.Metrics
	lem     lemma.Lemmatizer
	store   *store.Store
	cache   *knowledge.Cache
	tracker *known.Tracker
	http    *http.Client
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer, out io.Writer) (*app, error) {
	m := metrics.New(reg)
	lem := lemma.Default()
	lang := cfg.Language.Target

	st, err := store.Open(ctx, cfg.Database.Path, store.Options{
		Lemmatizer: lem,
		Logger:     log.Named("store"),
		Metrics:    m,
		Workers:    cfg.Analyzer.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	agg := &knowledge.Aggregator{
		Config: knowledge.Config{
			Language:          lang,
			FlashcardsEnabled: cfg.Anki.Enabled,
			MatureQuery:       cfg.Anki.QueryMature,
			YoungQuery:        cfg.Anki.QueryYoung,
			FieldMap:          cfg.Anki.FieldMap,
			FlashcardTimeout:  cfg.Anki.Timeout(),
		},
		Source:     st,
		Lemmatizer: lem,
		Logger:     log.Named("knowledge"),
		Metrics:    m,
	}
	if cfg.Anki.Enabled {
		agg.Flashcards = anki.New(cfg.Anki.URL, cfg.Anki.Timeout(), anki.WithLogger(log.Named("anki")))
	}
	cache := knowledge.NewCache(agg, cfg.Tracking.Lifetime(),
		knowledge.WithCacheLogger(log.Named("cache")),
		knowledge.WithCacheMetrics(m))

	a := &app{
		cfg:     cfg,
		log:     log,
		out:     out,
		metrics: m,
		lem:     lem,
		store:   st,
		cache:   cache,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	a.tracker = &known.Tracker{
		Language: lang,
		Classifier: known.Classifier{
			Weights:    cfg.Tracking.Weights,
			Thresholds: cfg.Tracking.Thresholds(),
			Cognates:   a.cognates(ctx),
		},
		Snapshots:  cache,
		Modifiers:  st,
		Lemmatizer: lem,
		Logger:     log.Named("known"),
	}
	return a, nil
}

// cognates loads the cognate lemmas of the target language. A missing or
// broken dataset only disables cognate thresholds.
func (a *app) cognates(ctx context.Context) map[string]struct{} {
	tc := a.cfg.Tracking
	if tc.CognatesPath == "" {
		return nil
	}
	if tc.CognatesURL != "" {
		if err := cognates.Ensure(ctx, tc.CognatesPath, tc.CognatesURL, a.log); err != nil {
			a.log.Warn("failed to fetch cognates, continuing without them", zap.Error(err))
			return nil
		}
	}
	ds, err := cognates.Load(tc.CognatesPath)
	if err != nil {
		a.log.Warn("failed to load cognates, continuing without them",
			zap.String("path", tc.CognatesPath), zap.Error(err))
		return nil
	}
	if ds.Languages()[a.cfg.Language.Target] == 0 {
		a.log.Warn("cognate dataset has no words for the target language",
			zap.String("language", a.cfg.Language.Target), zap.Any("languages", ds.Languages()))
	}
	set := ds.Lemmas(a.cfg.Language.Target, a.cfg.Language.Known)
	a.log.Debug("cognates loaded", zap.Int("lemmas", len(set)))
	return set
}

func (a *app) language() string { return a.cfg.Language.Target }

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
}
