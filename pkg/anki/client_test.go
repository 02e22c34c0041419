package anki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ankiServer(t *testing.T, handle func(req request) (interface{}, string)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, errMsg := handle(req)
		resp := map[string]interface{}{"result": result, "error": nil}
		if errMsg != "" {
			resp["error"] = errMsg
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFindNotesAndNotesInfo(t *testing.T) {
	srv, _ := ankiServer(t, func(req request) (interface{}, string) {
		assert.Equal(t, apiVersion, req.Version)
		switch req.Action {
		case "findNotes":
			params := req.Params.(map[string]interface{})
			assert.Equal(t, "deck:Spanish is:review", params["query"])
			return []int64{11, 12}, ""
		case "notesInfo":
			return []map[string]interface{}{
				{
					"noteId":    11,
					"modelName": "Basic",
					"tags":      []string{"sieve"},
					"fields": map[string]interface{}{
						"Front": map[string]interface{}{"value": "gato", "order": 0},
						"Back":  map[string]interface{}{"value": "el <b>gato</b> negro", "order": 1},
					},
				},
			}, ""
		}
		return nil, "unsupported action"
	})

	c := New(srv.URL, time.Second)
	ids, err := c.FindNotes(context.Background(), "deck:Spanish is:review")
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)

	notes, err := c.NotesInfo(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Basic", notes[0].ModelName)
	front, ok := notes[0].Field("Front")
	assert.True(t, ok)
	assert.Equal(t, "gato", front)
	_, ok = notes[0].Field("Missing")
	assert.False(t, ok)
}

func TestNotesInfoWithoutIDsSkipsCall(t *testing.T) {
	srv, calls := ankiServer(t, func(req request) (interface{}, string) { return nil, "" })
	notes, err := New(srv.URL, time.Second).NotesInfo(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, notes)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestRemoteErrorIsNotRetried(t *testing.T) {
	srv, calls := ankiServer(t, func(req request) (interface{}, string) {
		return nil, "collection is not available"
	})
	c := New(srv.URL, time.Second, WithRetries(3, time.Millisecond))
	_, err := c.FindNotes(context.Background(), "is:new")
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result": 6, "error": null}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, WithRetries(3, time.Millisecond))
	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetriesAreBounded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, WithRetries(2, time.Millisecond))
	_, err := c.FindNotes(context.Background(), "is:new")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTimeoutIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond, WithRetries(0, time.Millisecond))
	start := time.Now()
	_, err := c.FindNotes(context.Background(), "is:new")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
