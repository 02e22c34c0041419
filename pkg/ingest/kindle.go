package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/japaniel/sieve/pkg/db"
)

// KindleSource tags lookups imported from a Kindle vocabulary database.
const KindleSource = "kindle"

// ReadKindleLookups reads the lookups of language from a Kindle vocab.db.
// Word keys look like "en:word"; Kindle stores timestamps in milliseconds.
// The file is opened read-only.
func ReadKindleLookups(ctx context.Context, path, language string) ([]db.Lookup, error) {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open kindle db %s: %w", path, err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT word_key, timestamp FROM lookups ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("read kindle lookups from %s: %w", path, err)
	}
	defer rows.Close()

	var out []db.Lookup
	for rows.Next() {
		var key string
		var ms int64
		if err := rows.Scan(&key, &ms); err != nil {
			return nil, fmt.Errorf("scan kindle lookup: %w", err)
		}
		word, ok := kindleWord(key, language)
		if !ok {
			continue
		}
		out = append(out, db.Lookup{
			Timestamp: float64(ms) / 1000,
			Word:      word,
			Language:  language,
			Source:    KindleSource,
			Success:   true,
		})
	}
	return out, rows.Err()
}

// kindleWord strips the language prefix of a word key. Regional tags such as
// "en-GB" match their base language.
func kindleWord(key, language string) (string, bool) {
	prefix, word, ok := strings.Cut(key, ":")
	if !ok || word == "" {
		return "", false
	}
	if prefix != language && !strings.HasPrefix(prefix, language+"-") {
		return "", false
	}
	return word, true
}
