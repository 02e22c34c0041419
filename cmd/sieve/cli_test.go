package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/japaniel/sieve/pkg/db"
)

const story = `The old fisherman walked to the harbor before dawn.
He checked his nets and his boat.
The sea was calm and the sky was clear.
He sailed past the lighthouse and dropped the nets.


By noon the boat was full of silver fish.
The fisherman sang an old song on the way home.
`

const page = `<!DOCTYPE html><html><head><title>Harbor News</title></head><body>
<article><h1>Harbor News</h1>
<p>The harbor was busy this morning as the fishing fleet returned with a large catch.
Fishermen unloaded crates of silver fish while gulls circled over the docks.</p>
<p>Merchants from the town arrived early to buy the best of the catch before noon.
Prices were lower than last week because every boat came back full.</p>
</article></body></html>`

// cli runs sieve in-process against a database in a fresh temporary directory.
type cli struct {
	t   *testing.T
	dir string
	db  string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("SIEVE_LOGGING_LEVEL", "error")
	t.Setenv("SIEVE_METRICS_TEXTFILE", filepath.Join(dir, "sieve.prom"))
	return &cli{t: t, dir: dir, db: filepath.Join(dir, "sieve.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var out bytes.Buffer
	err := run(ctx, append([]string{"-db", c.db}, args...), &out)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("sieve %s: %v\noutput:\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCLIImportLookupAndClassify(t *testing.T) {
	c := newCLI(t)
	if err := os.WriteFile(filepath.Join(c.dir, "story.txt"), []byte(story), 0o644); err != nil {
		t.Fatal(err)
	}

	if out := c.mustRun("import", "story.txt"); !strings.Contains(out, `imported "story"`) {
		t.Fatalf("unexpected import output:\n%s", out)
	}
	if _, err := c.run("import", "story.txt"); err == nil {
		t.Fatalf("expected duplicate import to fail")
	}

	if out := c.mustRun("lookup", "Lighthouse"); !strings.Contains(out, "looked up on 1 days") {
		t.Fatalf("unexpected lookup output:\n%s", out)
	}
	// Every run rewrites the textfile with its own counters.
	prom, err := os.ReadFile(filepath.Join(c.dir, "sieve.prom"))
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(prom), "sieve_lookups_recorded_total") {
		t.Fatalf("metrics textfile missing lookup counter:\n%s", prom)
	}

	out := c.mustRun("status", "lighthouse")
	for _, want := range []string{"lighthouse", "lookups", "known"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	if out := c.mustRun("filter", "lighthouse", "harbor"); !strings.Contains(out, "lighthouse") {
		t.Fatalf("expected lighthouse to be unknown before marking:\n%s", out)
	}
	if out := c.mustRun("mark", "lighthouse"); !strings.Contains(out, "override known") {
		t.Fatalf("unexpected mark output:\n%s", out)
	}
	if out := c.mustRun("known"); !strings.Contains(out, "lighthouse") {
		t.Fatalf("marked word missing from known list:\n%s", out)
	}
	if out := c.mustRun("filter", "lighthouse"); strings.TrimSpace(out) != "" {
		t.Fatalf("marked word still filtered as unknown: %q", out)
	}
	c.mustRun("reset-overrides")
	if out := c.mustRun("known"); strings.Contains(out, "lighthouse") {
		t.Fatalf("override survived reset:\n%s", out)
	}

	out = c.mustRun("stats")
	for _, want := range []string{"lookups", "1 total", "words seen"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIAnalyze(t *testing.T) {
	c := newCLI(t)
	if err := os.WriteFile(filepath.Join(c.dir, "story.txt"), []byte(story), 0o644); err != nil {
		t.Fatal(err)
	}
	out := c.mustRun("analyze", "-seed", "3", "story.txt")
	for _, want := range []string{"verdict", "sentences by tier", "simulated reading", "cramming"} {
		if !strings.Contains(out, want) {
			t.Fatalf("analyze output missing %q:\n%s", want, out)
		}
	}
	if _, err := c.run("analyze", "-rate", "2", "story.txt"); err == nil {
		t.Fatalf("expected out of range rate to fail")
	}
}

func TestCLIImportURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := newCLI(t)
	c.mustRun("import", "-name", "harbor", "-date", "2024-05-01", srv.URL)
	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Fatalf("expected browser user agent, got %q", gotUA)
	}

	conn, err := db.Open(c.db)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	exists, err := db.ContentExists(context.Background(), conn, "en", "harbor")
	if err != nil || !exists {
		t.Fatalf("imported page not stored: exists=%v err=%v", exists, err)
	}

	if out := c.mustRun("delete-content", "harbor"); !strings.Contains(out, "deleted") {
		t.Fatalf("unexpected delete output:\n%s", out)
	}
	if _, err := c.run("delete-content", "harbor"); err == nil {
		t.Fatalf("expected deleting a missing content to fail")
	}
	c.mustRun("rebuild")
}

func TestCLIFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newCLI(t)
	if _, err := c.run("import", srv.URL); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestCLIPurgeNeedsConfirmation(t *testing.T) {
	c := newCLI(t)
	c.mustRun("lookup", "word")
	if _, err := c.run("purge"); err == nil {
		t.Fatalf("purge without -yes must fail")
	}
	c.mustRun("purge", "-yes")
	if out := c.mustRun("stats"); !strings.Contains(out, "0 total") {
		t.Fatalf("expected no lookups after purge:\n%s", out)
	}
}

func TestCLIUsage(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(); err != errUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := c.run("frobnicate"); err != errUsage {
		t.Fatalf("expected usage error for unknown command, got %v", err)
	}
	if _, err := c.run("status"); err != errUsage {
		t.Fatalf("expected usage error for missing word, got %v", err)
	}
}

func TestCLIImportKindleLookups(t *testing.T) {
	c := newCLI(t)
	vocab := filepath.Join(c.dir, "vocab.db")
	conn, err := sql.Open("sqlite3", vocab)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`CREATE TABLE lookups (id TEXT PRIMARY KEY, word_key TEXT, book_key TEXT,
		dict_key TEXT, pos TEXT, usage TEXT, timestamp INTEGER DEFAULT 0)`); err != nil {
		t.Fatal(err)
	}
	rows := []struct {
		key string
		ms  int64
	}{
		{"en:harbor", 1714550400000},
		{"en:harbor", 1714550460000},
		{"en:Lighthouse", 1714550520000},
		{"de:Hafen", 1714550580000},
	}
	for i, r := range rows {
		if _, err := conn.Exec(`INSERT INTO lookups (id, word_key, timestamp) VALUES (?, ?, ?)`,
			fmt.Sprint(i), r.key, r.ms); err != nil {
			t.Fatal(err)
		}
	}
	conn.Close()

	if out := c.mustRun("import-lookups", "vocab.db"); !strings.Contains(out, "imported 3 of 3 en lookups") {
		t.Fatalf("unexpected import-lookups output:\n%s", out)
	}
	if out := c.mustRun("import-lookups", "vocab.db"); !strings.Contains(out, "imported 0 of 3") {
		t.Fatalf("re-import should skip recorded lookups:\n%s", out)
	}
	if out := c.mustRun("stats"); !strings.Contains(out, "3 total") {
		t.Fatalf("expected imported lookups in stats:\n%s", out)
	}
	if out := c.mustRun("status", "harbor"); !strings.Contains(out, "lookups") {
		t.Fatalf("unexpected status output:\n%s", out)
	}
	if _, err := c.run("import-lookups", "missing.db"); err == nil {
		t.Fatalf("expected a missing vocabulary database to fail")
	}
}

func TestCLIListContentsAndNotes(t *testing.T) {
	c := newCLI(t)
	if out := c.mustRun("list-contents"); !strings.Contains(out, "no content") {
		t.Fatalf("expected empty listing:\n%s", out)
	}
	if err := os.WriteFile(filepath.Join(c.dir, "story.txt"), []byte(story), 0o644); err != nil {
		t.Fatal(err)
	}
	c.mustRun("import", "-date", "2024-05-01", "story.txt")
	out := c.mustRun("list-contents")
	for _, want := range []string{"story", "2024-05-01"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list-contents output missing %q:\n%s", want, out)
		}
	}

	if out := c.mustRun("note", "-sentence", "The sea was calm.", "calm"); !strings.Contains(out, "(1 today)") {
		t.Fatalf("unexpected note output:\n%s", out)
	}
	if out := c.mustRun("stats"); !strings.Contains(out, "notes today") {
		t.Fatalf("stats missing notes:\n%s", out)
	}
}
