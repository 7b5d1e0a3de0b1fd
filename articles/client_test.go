package articles

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

type fakeAPI struct {
	hits atomic.Int32
	srv  *httptest.Server
}

func newFakeAPI(t *testing.T, h http.HandlerFunc) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func failing(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func hanging(release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}
}

func serving(a Article) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/articles/" {
			json.NewEncoder(w).Encode(ListResponse{Articles: []Article{a}})
			return
		}
		if r.URL.Path != "/api/articles/"+a.Slug+"/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(a)
	}
}

func TestClientFallsBackInOrder(t *testing.T) {
	release := make(chan struct{})
	want := Article{ID: "art_1", Slug: "bar", Title: "Bar"}
	slow := newFakeAPI(t, hanging(release))
	broken := newFakeAPI(t, failing(http.StatusBadGateway))
	good := newFakeAPI(t, serving(want))
	never := newFakeAPI(t, serving(want))
	t.Cleanup(func() { close(release) })

	c := NewClient([]string{slow.srv.URL, broken.srv.URL + "/", good.srv.URL, never.srv.URL},
		WithAttemptTimeout(50*time.Millisecond))

	got, err := c.GetPublished(context.Background(), "bar")
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)

	assert.EqualValues(t, 1, slow.hits.Load())
	assert.EqualValues(t, 1, broken.hits.Load())
	assert.EqualValues(t, 1, good.hits.Load())
	assert.EqualValues(t, 0, never.hits.Load(), "no request after the first success")
}

func TestClientNotFoundStopsWalk(t *testing.T) {
	primary := newFakeAPI(t, failing(http.StatusNotFound))
	secondary := newFakeAPI(t, serving(Article{Slug: "gone"}))

	c := NewClient([]string{primary.srv.URL, secondary.srv.URL})
	_, err := c.GetPublished(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 0, secondary.hits.Load())
}

func TestClientAllTransient(t *testing.T) {
	a := newFakeAPI(t, failing(http.StatusServiceUnavailable))
	b := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	c := NewClient([]string{a.srv.URL, b.srv.URL})
	_, err := c.ListPublished(context.Background())
	var transient *TransientFetchError
	require.ErrorAs(t, err, &transient)
	assert.Contains(t, transient.URL, b.srv.URL)
	assert.EqualValues(t, 1, a.hits.Load())
	assert.EqualValues(t, 1, b.hits.Load())
}

func TestClientNoBaseURLs(t *testing.T) {
	c := NewClient([]string{" ", ""})
	assert.Empty(t, c.BaseURLs())
	_, err := c.ListPublished(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
}

func TestClientListPublished(t *testing.T) {
	api := newFakeAPI(t, serving(Article{ID: "art_1", Slug: "foo"}))
	c := NewClient([]string{api.srv.URL})

	list, err := c.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "foo", list[0].Slug)
}

func TestClientIgnoresPartialBodyFromFailedAttempt(t *testing.T) {
	raw := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}
	}
	broken := newFakeAPI(t, raw(`{"id":"art_1","slug":"bar","category":"stale","viewCount":"oops","title":"Bar"}`))
	good := newFakeAPI(t, raw(`{"id":"art_1","slug":"bar","title":"Bar"}`))

	c := NewClient([]string{broken.srv.URL, good.srv.URL})
	got, err := c.GetPublished(context.Background(), "bar")
	require.NoError(t, err)
	assert.Equal(t, "Bar", got.Title)
	assert.Empty(t, got.Category, "fields come only from the successful response")
	assert.EqualValues(t, 1, broken.hits.Load())
}
