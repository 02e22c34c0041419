// Package store is the lexical event store used by the rest of sieve. It wraps
// the SQL layer with write-time lemmatization, serialized writes and
// statistics reads that degrade to -1 instead of failing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/ingest"
	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/logger"
	"github.com/japaniel/sieve/pkg/metrics"
)

// Unavailable is returned by statistics reads that failed.
const Unavailable = -1

const defaultStatsTimeout = 2 * time.Second

// Options configures a Store. Zero values pick defaults.
type Options struct {
	Lemmatizer lemma.Lemmatizer
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	// Location is the time zone used for calendar-day bucketing. Defaults to time.Local.
	Location *time.Location
	// StatsTimeout bounds every statistics read.
	StatsTimeout time.Duration
	Workers      int
	BatchSize    int
}

// Store is safe for concurrent use. Writes are serialized; reads are not.
type Store struct {
	db       *sql.DB
	writeMu  sync.Mutex
	lem      lemma.Lemmatizer
	ingester *ingest.Ingester
	log      *zap.Logger
	metrics  *metrics.Metrics

	loc          *time.Location
	statsTimeout time.Duration

	// Now is the clock used for lookups without a timestamp.
	Now func() time.Time
}

// New wraps an already migrated connection.
func New(conn *sql.DB, opts Options) *Store {
	if opts.Lemmatizer == nil {
		opts.Lemmatizer = lemma.Default()
	}
	opts.Logger = logger.OrNop(opts.Logger)
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = defaultStatsTimeout
	}
	ig := ingest.NewIngester(conn, opts.Lemmatizer)
	ig.Logger = opts.Logger.Named("ingest")
	if opts.Workers > 0 {
		ig.Workers = opts.Workers
	}
	if opts.BatchSize > 0 {
		ig.BatchSize = opts.BatchSize
	}
	return &Store{
		db:           conn,
		lem:          opts.Lemmatizer,
		ingester:     ig,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		loc:          opts.Location,
		statsTimeout: opts.StatsTimeout,
		Now:          time.Now,
	}
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, opts.Logger); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn, opts), nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LookupInput describes one dictionary lookup attempt.
type LookupInput struct {
	Word     string
	Language string
	Source   string
	Success  bool
	// Timestamp zero means now.
	Timestamp time.Time
}

// RecordLookup lemmatizes the word and stores the lookup. It returns false
// without error when the same lemma was already recorded at that timestamp.
func (s *Store) RecordLookup(ctx context.Context, in LookupInput) (bool, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.Now()
	}
	l := db.Lookup{
		Timestamp: epoch(ts),
		Word:      in.Word,
		Language:  in.Language,
		Source:    in.Source,
		Success:   in.Success,
	}
	l.Lemma = s.lem.Lemmatize(in.Word, in.Language)
	l.Lemmatized = l.Lemma != "" && l.Lemma != in.Word
	if l.Lemma == "" {
		l.Lemma = in.Word
	}

	s.writeMu.Lock()
	ok, err := db.InsertLookup(ctx, s.db, l)
	s.writeMu.Unlock()
	switch {
	case err != nil:
		s.metrics.Lookup("error")
		return false, err
	case !ok:
		s.metrics.Lookup("duplicate")
		s.log.Debug("duplicate lookup ignored", zap.String("lemma", l.Lemma), zap.Float64("timestamp", l.Timestamp))
	default:
		s.metrics.Lookup("recorded")
	}
	return ok, nil
}

// ImportContent registers a finished book or article and adds its lemmas to
// the exposure counts. A name already used for language is rejected with false.
func (s *Store) ImportContent(ctx context.Context, name, body, language string, date time.Time) (bool, error) {
	start := time.Now()
	if date.IsZero() {
		date = s.Now()
	}
	s.writeMu.Lock()
	ok, err := s.ingester.ImportContent(ctx, db.Content{
		Language: language,
		Name:     strings.TrimSpace(name),
		Date:     date.Unix(),
		Text:     body,
	})
	s.writeMu.Unlock()
	switch {
	case err != nil:
		s.metrics.Import("error", time.Since(start))
	case !ok:
		s.metrics.Import("duplicate", time.Since(start))
	default:
		s.metrics.Import("imported", time.Since(start))
	}
	return ok, err
}

// DeleteContent removes a content row. Exposure counts stay until the next RebuildSeen.
func (s *Store) DeleteContent(ctx context.Context, language, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return db.DeleteContent(ctx, s.db, language, name)
}

// ListContents returns the content rows of language in insertion order.
func (s *Store) ListContents(ctx context.Context, language string) ([]db.Content, error) {
	return db.ListContents(ctx, s.db, language)
}

// RebuildSeen recomputes the exposure table from every content row.
// progress, if set, is called after each content row.
func (s *Store) RebuildSeen(ctx context.Context, progress func(current, total int)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ig := *s.ingester
	ig.OnProgress = progress
	return ig.RebuildSeen(ctx)
}

// ImportLookups bulk-inserts historical lookups, e.g. an e-reader vocabulary export.
func (s *Store) ImportLookups(ctx context.Context, lookups []db.Lookup) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ingester.ImportLookups(ctx, lookups)
}

// SeenCounts returns lemma -> exposure count for language.
func (s *Store) SeenCounts(ctx context.Context, language string) (map[string]int, error) {
	return db.SeenCounts(ctx, s.db, language)
}

// LemmaLookupDays returns, per lemma, the number of distinct local calendar
// days on which it was looked up.
func (s *Store) LemmaLookupDays(ctx context.Context, language string) (map[string]int, error) {
	times, err := db.LemmaLookupTimes(ctx, s.db, language)
	if err != nil {
		return nil, fmt.Errorf("lemma lookup times: %w", err)
	}
	type key struct {
		lemma string
		day   string
	}
	days := make(map[key]struct{}, len(times))
	out := make(map[string]int)
	for _, lt := range times {
		k := key{lt.Lemma, s.dayKey(lt.Timestamp)}
		if _, ok := days[k]; ok {
			continue
		}
		days[k] = struct{}{}
		out[lt.Lemma]++
	}
	return out, nil
}

// CountLookupsDay counts distinct words successfully looked up on the local
// calendar day containing day, or Unavailable.
func (s *Store) CountLookupsDay(ctx context.Context, day time.Time) int {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	start, end := s.dayBounds(day)
	n, err := db.CountDistinctLookupWords(ctx, s.db, start, end)
	return s.degrade("lookups_day", n, err)
}

// CountNotesDay counts successful flashcard exports on the local calendar day
// containing day, or Unavailable.
func (s *Store) CountNotesDay(ctx context.Context, day time.Time) int {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	start, end := s.dayBounds(day)
	n, err := db.CountNotes(ctx, s.db, start, end)
	return s.degrade("notes_day", n, err)
}

// CountLookups counts all lookup events for language, or Unavailable.
func (s *Store) CountLookups(ctx context.Context, language string) int {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	n, err := db.CountLookups(ctx, s.db, language)
	return s.degrade("lookups", n, err)
}

// CountLemmaLookups counts the distinct local calendar days on which word's
// lemma was looked up, the same per-day cap as LemmaLookupDays, or Unavailable.
func (s *Store) CountLemmaLookups(ctx context.Context, word, language string) int {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	l := s.lem.Lemmatize(word, language)
	if l == "" {
		l = word
	}
	times, err := db.LemmaLookupTimestamps(ctx, s.db, l, language)
	if err != nil {
		return s.degrade("lemma_lookups", 0, err)
	}
	days := make(map[string]struct{}, len(times))
	for _, ts := range times {
		days[s.dayKey(ts)] = struct{}{}
	}
	return len(days)
}

// CountSeen returns total exposures and distinct exposed lemmas, both
// Unavailable on error.
func (s *Store) CountSeen(ctx context.Context, language string) (total, distinct int) {
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	total, distinct, err := db.CountSeen(ctx, s.db, language)
	if err != nil {
		s.degrade("seen", 0, err)
		return Unavailable, Unavailable
	}
	return total, distinct
}

// DayCount is the number of distinct lemmas looked up on one local day.
type DayCount struct {
	Day    time.Time
	Lemmas int
}

// LookupHistory returns one entry per day for the last days days, oldest
// first, ending today. It returns nil if the history cannot be read.
func (s *Store) LookupHistory(ctx context.Context, language string, days int) []DayCount {
	if days <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.statsTimeout)
	defer cancel()
	times, err := db.LemmaLookupTimes(ctx, s.db, language)
	if err != nil {
		s.degrade("history", 0, err)
		return nil
	}
	perDay := make(map[string]map[string]struct{})
	for _, lt := range times {
		k := s.dayKey(lt.Timestamp)
		if perDay[k] == nil {
			perDay[k] = make(map[string]struct{})
		}
		perDay[k][lt.Lemma] = struct{}{}
	}

	today := s.Now().In(s.loc)
	first := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, -(days - 1))
	out := make([]DayCount, days)
	for i := range out {
		d := first.AddDate(0, 0, i)
		out[i] = DayCount{Day: d, Lemmas: len(perDay[d.Format(time.DateOnly)])}
	}
	return out
}

// Modifier returns the override of lemma, neutral if none is stored.
func (s *Store) Modifier(ctx context.Context, language, lemma string) (db.Modifier, error) {
	return db.GetModifier(ctx, s.db, language, lemma)
}

// Modifiers returns every stored override of language keyed by lemma.
func (s *Store) Modifiers(ctx context.Context, language string) (map[string]db.Modifier, error) {
	return db.ListModifiers(ctx, s.db, language)
}

// SetModifier persists an override. A neutral override removes the row.
func (s *Store) SetModifier(ctx context.Context, m db.Modifier) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return db.SetModifier(ctx, s.db, m)
}

// DeleteModifiers resets every override of language.
func (s *Store) DeleteModifiers(ctx context.Context, language string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return db.DeleteModifiers(ctx, s.db, language)
}

// RecordNote stores a flashcard export attempt. Zero timestamp means now.
func (s *Store) RecordNote(ctx context.Context, n db.Note) error {
	if n.Timestamp == 0 {
		n.Timestamp = epoch(s.Now())
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := db.InsertNote(ctx, s.db, n)
	return err
}

// Purge drops every table and recreates the schema.
func (s *Store) Purge(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := db.Reset(ctx, s.db, s.log); err != nil {
		return err
	}
	s.log.Info("store purged")
	return nil
}

func (s *Store) degrade(query string, n int, err error) int {
	if err == nil {
		return n
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("statistics query timed out", zap.String("query", query))
	} else {
		s.log.Warn("statistics query failed", zap.String("query", query), zap.Error(err))
	}
	s.metrics.Degraded(query)
	return Unavailable
}

// dayBounds returns [start, end) of day's local calendar day in epoch seconds.
func (s *Store) dayBounds(day time.Time) (float64, float64) {
	d := day.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	return epoch(start), epoch(start.AddDate(0, 0, 1))
}

func (s *Store) dayKey(ts float64) string {
	return fromEpoch(ts).In(s.loc).Format(time.DateOnly)
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
