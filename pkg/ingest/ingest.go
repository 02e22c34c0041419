package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/lemma"
	"github.com/japaniel/sieve/pkg/logger"
	"github.com/japaniel/sieve/pkg/text"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester runs the write paths that turn text into exposure counts.
type Ingester struct {
	DB         *sql.DB
	Lemmatizer lemma.Lemmatizer
	// Tokenizer picks the tokenizer for a language. nil means text.TokenizerFor.
	Tokenizer func(language string) (text.Tokenizer, error)
	// BatchSize is the number of writes committed per transaction by RebuildSeen
	// and ImportLookups.
	BatchSize int
	// ChunkSize is the number of tokens lemmatized per pool job.
	ChunkSize int
	Workers   int
	// Logger nil means no logging.
	Logger *zap.Logger
	// OnProgress is called with the number of processed items and the total.
	OnProgress func(current, total int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB, lem lemma.Lemmatizer) *Ingester {
	return &Ingester{
		DB:         conn,
		Lemmatizer: lem,
		BatchSize:  50,
		ChunkSize:  2000,
		Workers:    4,
	}
}

func (ig *Ingester) log() *zap.Logger { return logger.OrNop(ig.Logger) }

func (ig *Ingester) tokenizer(language string) (text.Tokenizer, error) {
	if ig.Tokenizer != nil {
		return ig.Tokenizer(language)
	}
	return text.TokenizerFor(language)
}

func (ig *Ingester) newPool() WorkerPoolInterface {
	if ig.PoolFactory != nil {
		return ig.PoolFactory(ig.Workers, ig.Workers*2)
	}
	return NewWorkerPool(ig.Workers, ig.Workers*2)
}

// LemmaCounts tokenizes body and returns lemma -> occurrence count. Tokens are
// lemmatized in chunks on a worker pool; tokens that lemmatize to "" are skipped.
func (ig *Ingester) LemmaCounts(ctx context.Context, language, body string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := ig.tokenizer(language)
	if err != nil {
		return nil, fmt.Errorf("tokenizer for %s: %w", language, err)
	}
	tokens := tok.Tokens(body)
	counts := make(map[string]int)
	if len(tokens) == 0 {
		return counts, nil
	}

	chunkSize := ig.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(tokens)
	}
	var chunks [][]string
	for start := 0; start < len(tokens); start += chunkSize {
		end := start + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, tokens[start:end])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered to the number of chunks so workers never block on send.
	resultCh := make(chan map[string]int, len(chunks))
	wp := ig.newPool()
	wp.Start(ctx)

	submitted := 0
	for _, chunk := range chunks {
		chunk := chunk
		job := func(ctx context.Context) error {
			partial := make(map[string]int, len(chunk))
			for _, t := range chunk {
				l := ig.Lemmatizer.Lemmatize(t, language)
				if l == "" {
					continue
				}
				partial[l]++
			}
			resultCh <- partial
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			cancel()
			wp.Close()
			return nil, fmt.Errorf("submit lemmatization chunk: %w", err)
		}
		submitted++
	}
	wp.Close()
	close(resultCh)

	received := 0
	for partial := range resultCh {
		received++
		for l, n := range partial {
			counts[l] += n
		}
	}
	if received != submitted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("lemmatization finished %d of %d chunks", received, submitted)
	}
	return counts, nil
}

// ImportContent stores c and adds its lemma counts to the exposure table in one
// transaction. It returns false without error when c.Name is already taken
// for c.Language.
func (ig *Ingester) ImportContent(ctx context.Context, c db.Content) (bool, error) {
	start := time.Now()
	exists, err := db.ContentExists(ctx, ig.DB, c.Language, c.Name)
	if err != nil {
		return false, fmt.Errorf("check content: %w", err)
	}
	if exists {
		ig.log().Info("content already imported", zap.String("name", c.Name), zap.String("language", c.Language))
		return false, nil
	}

	counts, err := ig.LemmaCounts(ctx, c.Language, c.Text)
	if err != nil {
		return false, err
	}

	tx, err := ig.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := db.InsertContent(ctx, tx, c); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	if err := applyCounts(ctx, tx, c.Language, counts); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit import: %w", err)
	}

	ig.log().Info("content imported",
		zap.String("name", c.Name),
		zap.String("language", c.Language),
		zap.Int("lemmas", len(counts)),
		zap.Duration("elapsed", time.Since(start)))
	return true, nil
}

// applyCounts upserts counts in lemma order so repeated runs touch rows identically.
func applyCounts(ctx context.Context, ex db.DBExecutor, language string, counts map[string]int) error {
	lemmas := make([]string, 0, len(counts))
	for l := range counts {
		lemmas = append(lemmas, l)
	}
	sort.Strings(lemmas)
	for _, l := range lemmas {
		if err := db.IncrementSeen(ctx, ex, language, l, counts[l]); err != nil {
			return err
		}
	}
	return nil
}

// RebuildSeen clears the exposure table and recomputes it from every content
// row in insertion order. Writes go through a BatchWriter, so an interrupted
// rebuild leaves partial counts behind until the next rebuild.
func (ig *Ingester) RebuildSeen(ctx context.Context) error {
	contents, err := db.ListContents(ctx, ig.DB, "")
	if err != nil {
		return fmt.Errorf("list contents: %w", err)
	}

	bw := NewBatchWriter(ig.DB, BatchOptions{Size: ig.BatchSize, Logger: ig.Logger})
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return db.ClearSeen(ctx, tx)
	}); err != nil {
		_ = bw.Close()
		return err
	}

	total := len(contents)
	for i, c := range contents {
		counts, err := ig.LemmaCounts(ctx, c.Language, c.Text)
		if err != nil {
			_ = bw.Close()
			return fmt.Errorf("lemmatize content %q: %w", c.Name, err)
		}
		language := c.Language
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			return applyCounts(ctx, tx, language, counts)
		}); err != nil {
			_ = bw.Close()
			return err
		}
		if ig.OnProgress != nil {
			ig.OnProgress(i+1, total)
		}
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("rebuild seen: %w", err)
	}
	ig.log().Info("exposure rebuilt", zap.Int("contents", total))
	return nil
}

// ImportLookups bulk-inserts historical lookups, lemmatizing those without a
// lemma. Duplicates are ignored; the number of new rows is returned.
func (ig *Ingester) ImportLookups(ctx context.Context, lookups []db.Lookup) (int, error) {
	var inserted int64
	bw := NewBatchWriter(ig.DB, BatchOptions{Size: ig.BatchSize, Logger: ig.Logger})
	for i, l := range lookups {
		if err := ctx.Err(); err != nil {
			_ = bw.Close()
			return int(atomic.LoadInt64(&inserted)), err
		}
		if l.Lemma == "" {
			l.Lemma = ig.Lemmatizer.Lemmatize(l.Word, l.Language)
			l.Lemmatized = true
		}
		if l.Lemma == "" || l.Language == "" {
			ig.log().Debug("skipping lookup without lemma", zap.String("word", l.Word))
			continue
		}
		row := l
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			ok, err := db.InsertLookup(ctx, tx, row)
			if err != nil {
				return err
			}
			if ok {
				atomic.AddInt64(&inserted, 1)
			}
			return nil
		}); err != nil {
			_ = bw.Close()
			return int(atomic.LoadInt64(&inserted)), err
		}
		if ig.OnProgress != nil && ig.BatchSize > 0 && (i+1)%ig.BatchSize == 0 {
			ig.OnProgress(i+1, len(lookups))
		}
	}
	err := bw.Close()
	if ig.OnProgress != nil {
		ig.OnProgress(len(lookups), len(lookups))
	}
	return int(atomic.LoadInt64(&inserted)), err
}
