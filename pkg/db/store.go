package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// InsertLookup stores a lookup event. A repeated (timestamp, lemma) pair is
// ignored and reported as inserted=false.
func InsertLookup(ctx context.Context, db DBExecutor, l Lookup) (bool, error) {
	if strings.TrimSpace(l.Word) == "" || l.Language == "" {
		return false, fmt.Errorf("%w: lookup needs a word and a language", ErrInvalidInput)
	}
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lookups (timestamp, word, lemma, language, lemmatized, source, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.Timestamp, l.Word, l.Lemma, l.Language, l.Lemmatized, l.Source, l.Success)
	if err != nil {
		return false, fmt.Errorf("insert lookup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LemmaLookupTimes returns every (lemma, timestamp) pair recorded for language.
// Day bucketing happens in the caller so it can use the local time zone.
func LemmaLookupTimes(ctx context.Context, db DBExecutor, language string) ([]LemmaTime, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT lemma, timestamp FROM lookups WHERE language = ? ORDER BY timestamp`, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LemmaTime
	for rows.Next() {
		var lt LemmaTime
		if err := rows.Scan(&lt.Lemma, &lt.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

// CountDistinctLookupWords counts distinct words successfully looked up in [start, end).
func CountDistinctLookupWords(ctx context.Context, db DBExecutor, start, end float64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT word) FROM lookups WHERE timestamp >= ? AND timestamp < ? AND success = 1`,
		start, end).Scan(&n)
	return n, err
}

// CountLookups counts lookup events for language.
func CountLookups(ctx context.Context, db DBExecutor, language string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookups WHERE language = ?`, language).Scan(&n)
	return n, err
}

// LemmaLookupTimestamps returns the timestamps at which lemma was looked up, oldest first.
func LemmaLookupTimestamps(ctx context.Context, db DBExecutor, lemma, language string) ([]float64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT timestamp FROM lookups WHERE lemma = ? AND language = ? ORDER BY timestamp`, lemma, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var ts float64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// InsertContent stores a content row and returns its id. A name already used for
// the language yields ErrDuplicate.
func InsertContent(ctx context.Context, db DBExecutor, c Content) (int64, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" || c.Language == "" {
		return 0, fmt.Errorf("%w: content needs a name and a language", ErrInvalidInput)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO contents (language, name, date, content) VALUES (?, ?, ?, ?)`,
		c.Language, name, c.Date, c.Text)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, fmt.Errorf("%w: content %q (%s)", ErrDuplicate, name, c.Language)
		}
		return 0, fmt.Errorf("insert content: %w", err)
	}
	return res.LastInsertId()
}

// ContentExists reports whether name is already registered for language.
func ContentExists(ctx context.Context, db DBExecutor, language, name string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM contents WHERE language = ? AND name = ?`, language, strings.TrimSpace(name)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListContents returns content rows in insertion order. An empty language lists all.
func ListContents(ctx context.Context, db DBExecutor, language string) ([]Content, error) {
	query := `SELECT id, language, name, date, content FROM contents`
	var args []interface{}
	if language != "" {
		query += ` WHERE language = ?`
		args = append(args, language)
	}
	query += ` ORDER BY id`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(&c.ID, &c.Language, &c.Name, &c.Date, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContent removes a content row. Exposure counts are left as they are.
func DeleteContent(ctx context.Context, db DBExecutor, language, name string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM contents WHERE language = ? AND name = ?`, language, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: content %q (%s)", ErrNotFound, name, language)
	}
	return nil
}

// IncrementSeen adds n to the exposure count of (language, lemma).
func IncrementSeen(ctx context.Context, db DBExecutor, language, lemma string, n int) error {
	if lemma == "" {
		return fmt.Errorf("%w: empty lemma", ErrInvalidInput)
	}
	if n < 1 {
		return fmt.Errorf("%w: increment must be positive, got %d", ErrInvalidInput, n)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO seen (language, lemma, count) VALUES (?, ?, ?)
		 ON CONFLICT(language, lemma) DO UPDATE SET count = seen.count + excluded.count`,
		language, lemma, n)
	if err != nil {
		return fmt.Errorf("upsert seen %s/%s: %w", language, lemma, err)
	}
	return nil
}

// ClearSeen deletes every exposure row.
func ClearSeen(ctx context.Context, db DBExecutor) error {
	_, err := db.ExecContext(ctx, `DELETE FROM seen`)
	return err
}

// SeenCounts returns lemma -> exposure count for language.
func SeenCounts(ctx context.Context, db DBExecutor, language string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT lemma, count FROM seen WHERE language = ?`, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var lemma string
		var n int
		if err := rows.Scan(&lemma, &n); err != nil {
			return nil, err
		}
		out[lemma] = n
	}
	return out, rows.Err()
}

// CountSeen returns the total number of exposures and the number of distinct lemmas.
func CountSeen(ctx context.Context, db DBExecutor, language string) (total, distinct int, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0), COUNT(*) FROM seen WHERE language = ?`, language).Scan(&total, &distinct)
	return total, distinct, err
}

// GetModifier returns the modifier for (language, lemma) or the neutral one.
func GetModifier(ctx context.Context, db DBExecutor, language, lemma string) (Modifier, error) {
	m := Modifier{Language: language, Lemma: lemma}
	var state string
	err := db.QueryRowContext(ctx,
		`SELECT value, state FROM modifiers WHERE language = ? AND lemma = ?`, language, lemma).Scan(&m.Value, &state)
	if err == sql.ErrNoRows {
		return NeutralModifier(language, lemma), nil
	}
	if err != nil {
		return Modifier{}, fmt.Errorf("get modifier: %w", err)
	}
	m.State = OverrideState(state)
	return m, nil
}

// ListModifiers returns every stored modifier for language keyed by lemma.
func ListModifiers(ctx context.Context, db DBExecutor, language string) (map[string]Modifier, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT lemma, value, state FROM modifiers WHERE language = ?`, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]Modifier)
	for rows.Next() {
		m := Modifier{Language: language}
		var state string
		if err := rows.Scan(&m.Lemma, &m.Value, &state); err != nil {
			return nil, err
		}
		m.State = OverrideState(state)
		out[m.Lemma] = m
	}
	return out, rows.Err()
}

// SetModifier upserts a modifier. A neutral modifier deletes the row instead.
func SetModifier(ctx context.Context, db DBExecutor, m Modifier) error {
	if m.Language == "" || m.Lemma == "" {
		return fmt.Errorf("%w: modifier needs a language and a lemma", ErrInvalidInput)
	}
	if m.Value < 0 {
		return fmt.Errorf("%w: modifier value %v is negative", ErrInvalidInput, m.Value)
	}
	if m.State == OverrideNeutral {
		_, err := db.ExecContext(ctx,
			`DELETE FROM modifiers WHERE language = ? AND lemma = ?`, m.Language, m.Lemma)
		return err
	}
	if m.State == "" {
		m.State = OverrideCustom
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO modifiers (language, lemma, value, state) VALUES (?, ?, ?, ?)
		 ON CONFLICT(language, lemma) DO UPDATE SET value = excluded.value, state = excluded.state`,
		m.Language, m.Lemma, m.Value, string(m.State))
	if err != nil {
		return fmt.Errorf("upsert modifier: %w", err)
	}
	return nil
}

// DeleteModifiers removes all modifiers for language.
func DeleteModifiers(ctx context.Context, db DBExecutor, language string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM modifiers WHERE language = ?`, language)
	return err
}

// InsertNote stores a flashcard export attempt.
func InsertNote(ctx context.Context, db DBExecutor, n Note) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO notes (timestamp, word, sentence, definition, tags, success) VALUES (?, ?, ?, ?, ?, ?)`,
		n.Timestamp, n.Word, n.Sentence, n.Definition, n.Tags, n.Success)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return res.LastInsertId()
}

// CountNotes counts successful notes created in [start, end).
func CountNotes(ctx context.Context, db DBExecutor, start, end float64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE timestamp >= ? AND timestamp < ? AND success = 1`,
		start, end).Scan(&n)
	return n, err
}
