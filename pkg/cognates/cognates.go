// Package cognates loads the cognate dataset: for every language, a map from
// word to the languages it has a cognate in.
package cognates

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Dataset maps language -> word -> languages sharing a cognate of word.
type Dataset map[string]map[string][]string

// Load reads a dataset from path. Files ending in .gz or .xz are decompressed.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch {
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open xz stream: %w", err)
		}
		r = xr
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gr.Close()
		r = gr
	}
	d, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes an uncompressed dataset.
func Parse(r io.Reader) (Dataset, error) {
	var d Dataset
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Dataset{}
	}
	return d, nil
}

// Lemmas returns the words of language that have a cognate in at least one
// of the known languages. A nil dataset has no cognates.
func (d Dataset) Lemmas(language string, known []string) map[string]struct{} {
	out := make(map[string]struct{})
	if len(known) == 0 {
		return out
	}
	want := make(map[string]struct{}, len(known))
	for _, k := range known {
		if k != language {
			want[k] = struct{}{}
		}
	}
	for word, langs := range d[language] {
		for _, l := range langs {
			if _, ok := want[l]; ok {
				out[word] = struct{}{}
				break
			}
		}
	}
	return out
}

// Languages returns how many words each language of the dataset has.
func (d Dataset) Languages() map[string]int {
	out := make(map[string]int, len(d))
	for lang, words := range d {
		out[lang] = len(words)
	}
	return out
}
