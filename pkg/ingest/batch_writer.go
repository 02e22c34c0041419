package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/sieve/pkg/logger"
)

// WriteFunc performs database writes inside a batch transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// BatchOptions configures a BatchWriter.
type BatchOptions struct {
	// Size flushes when this many writes are buffered. Defaults to 10.
	Size int
	// FlushInterval flushes a partial batch after this long; 0 disables it.
	FlushInterval time.Duration
	Logger        *zap.Logger
}

// BatchWriter buffers writes and commits each batch in one transaction. A
// failing write rolls back its whole batch; the first such error is kept and
// returned by Close.
type BatchWriter struct {
	mu     sync.Mutex
	buf    []WriteFunc
	size   int
	ticker *time.Ticker
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	commitCh chan []WriteFunc
	db       *sql.DB
	log      *zap.Logger

	// OnError is called for every failed batch.
	OnError func(error)

	errMu   sync.Mutex
	lastErr error
	batches int
}

// NewBatchWriter starts a writer over db.
func NewBatchWriter(db *sql.DB, opts BatchOptions) *BatchWriter {
	if opts.Size <= 0 {
		opts.Size = 10
	}
	log := logger.OrNop(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		buf:      make([]WriteFunc, 0, opts.Size),
		size:     opts.Size,
		ctx:      ctx,
		cancel:   cancel,
		commitCh: make(chan []WriteFunc, 2),
		db:       db,
		log:      log,
	}

	bw.wg.Add(1)
	go bw.committer()

	if opts.FlushInterval > 0 {
		bw.ticker = time.NewTicker(opts.FlushInterval)
		bw.wg.Add(1)
		go bw.loop()
	}
	return bw
}

// Submit enqueues a write function.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.size {
		bw.flushLocked()
	}
	return nil
}

// Flush hands the buffered writes to the committer without waiting for them.
func (bw *BatchWriter) Flush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.flushLocked()
}

// flushLocked assumes bw.mu is held. Blocking on a busy committer here is the
// writer's backpressure.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	batch := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.size)

	select {
	case bw.commitCh <- batch:
	case <-bw.ctx.Done():
		bw.fail(fmt.Errorf("batch writer: dropping batch of %d writes after shutdown", len(batch)))
	}
}

func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.lastErr == nil {
		bw.lastErr = err
	}
	bw.errMu.Unlock()
	bw.log.Warn("batch failed", zap.Error(err))
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

func (bw *BatchWriter) committer() {
	defer bw.wg.Done()
	for batch := range bw.commitCh {
		start := time.Now()
		if err := bw.executeBatch(batch); err != nil {
			bw.fail(err)
			continue
		}
		bw.errMu.Lock()
		bw.batches++
		bw.errMu.Unlock()
		bw.log.Debug("batch committed",
			zap.Int("writes", len(batch)),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (bw *BatchWriter) executeBatch(batch []WriteFunc) error {
	// Without a DB the callbacks run with a nil tx; tests use this.
	if bw.db == nil {
		for _, w := range batch {
			if err := w(bw.ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// Background context so batches drained during Close still commit.
	ctx := context.Background()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch (%d writes): %w", len(batch), err)
	}
	return nil
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.ticker.C:
			bw.Flush()
		}
	}
}

// Committed returns the number of batches committed so far.
func (bw *BatchWriter) Committed() int {
	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.batches
}

// Close stops accepting submissions, commits what is buffered and returns the
// first error seen.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	bw.flushLocked()
	bw.mu.Unlock()

	bw.cancel()
	close(bw.commitCh)
	bw.wg.Wait()

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.lastErr
}

var ErrBatchWriterClosed = &BatchWriterError{"batch writer closed"}

type BatchWriterError struct{ msg string }

func (e *BatchWriterError) Error() string { return e.msg }
