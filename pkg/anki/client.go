// Package anki is a small AnkiConnect client covering the read-only calls the
// knowledge aggregator needs.
package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// DefaultURL is where AnkiConnect listens by default.
const DefaultURL = "http://127.0.0.1:8765"

const (
	apiVersion      = 6
	maxResponseSize = 64 << 20
)

// ErrRemote wraps errors reported by AnkiConnect itself. They are not retried.
var ErrRemote = errors.New("ankiconnect error")

// Client talks to AnkiConnect over HTTP. Each attempt is bounded by the HTTP
// client timeout; failed transports and 5xx responses are retried with
// exponential backoff.
type Client struct {
	url     string
	http    *http.Client
	retries uint64
	backoff time.Duration
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets how often a failed call is retried and the first backoff delay.
func WithRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if base > 0 {
			c.backoff = base
		}
	}
}

// WithLogger sets the logger used for retry messages.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a client for the AnkiConnect endpoint at url.
func New(url string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		retries: 2,
		backoff: 200 * time.Millisecond,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Action  string      `json:"action"`
	Version int         `json:"version"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Field is one note field as returned by notesInfo.
type Field struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NoteInfo is a note with its type and field values.
type NoteInfo struct {
	NoteID    int64            `json:"noteId"`
	ModelName string           `json:"modelName"`
	Tags      []string         `json:"tags"`
	Fields    map[string]Field `json:"fields"`
}

// Field returns the value of the named field.
func (n NoteInfo) Field(name string) (string, bool) {
	f, ok := n.Fields[name]
	return f.Value, ok
}

// Version returns the AnkiConnect API version, which doubles as a reachability check.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	err := c.invoke(ctx, "version", nil, &v)
	return v, err
}

// FindNotes returns the ids of notes matching an Anki search query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	if err := c.invoke(ctx, "findNotes", map[string]string{"query": query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// NotesInfo returns type and fields of the given notes.
func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]NoteInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var notes []NoteInfo
	if err := c.invoke(ctx, "notesInfo", map[string][]int64{"notes": ids}, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) invoke(ctx context.Context, action string, params, out interface{}) error {
	body, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.post(ctx, action, body, out)
		var re *retryable
		if errors.As(err, &re) {
			c.log.Debug("ankiconnect call failed",
				zap.String("action", action),
				zap.Int("attempt", attempt),
				zap.Error(re.err))
			return retry.RetryableError(re.err)
		}
		return err
	})
}

type retryable struct{ err error }

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

func (c *Client) post(ctx context.Context, action string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retryable{fmt.Errorf("%s: %w", action, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &retryable{fmt.Errorf("%s: status %s", action, resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %s", action, resp.Status)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&r); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if r.Error != nil && *r.Error != "" {
		return fmt.Errorf("%w: %s: %s", ErrRemote, action, *r.Error)
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}
