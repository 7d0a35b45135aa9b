package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"book_spider/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestFetcher(t *testing.T, base string, rec *sleepRecorder) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Options{
		BaseURL:   base,
		UserAgent: "book_spider-test",
		VerifyTLS: true,
		Policy:    Policy{MaxAttempts: 10, BaseDelay: 10 * time.Second, Sleep: rec.sleep},
	})
	require.NoError(t, err)
	return f
}

func TestBackoffSchedule(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 12*time.Second, p.Backoff(0))
	assert.Equal(t, 14*time.Second, p.Backoff(1))

	prev := time.Duration(0)
	for i := 0; i < p.Attempts(); i++ {
		d := p.Backoff(i)
		assert.GreaterOrEqual(t, d, p.BaseDelay)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}

	assert.Equal(t, 10, Policy{MaxAttempts: 50}.Attempts())
	assert.Equal(t, 10, Policy{}.Attempts())
	assert.Equal(t, 3, Policy{MaxAttempts: 3}.Attempts())
}

func TestGetRetriesNotFoundThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := newTestFetcher(t, srv.URL, rec)

	res, err := f.Get(context.Background(), srv.URL+"/book")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	var body struct{ OK bool }
	require.NoError(t, res.JSON(&body))
	assert.True(t, body.OK)

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{12 * time.Second, 14 * time.Second}, rec.delays)
}

func TestGetGivesUpAfterTenAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := newTestFetcher(t, srv.URL, rec)

	_, err := f.Get(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, errs.KindConnection, errs.Classify(err))

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 10, fe.Attempts)
	assert.Equal(t, http.StatusNotFound, fe.Status)

	assert.EqualValues(t, 10, atomic.LoadInt32(&calls))
	assert.Len(t, rec.delays, 9)
}

func TestGetHandsBackRedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMovedPermanently)
		_, _ = w.Write([]byte(`{"redirect":"/shop/catalogue/2665/sort/a/page/1.html"}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := newTestFetcher(t, srv.URL, rec)

	res, err := f.Get(context.Background(), srv.URL, WithParams(map[string]string{"q": "catalogue", "id": "3"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, res.Status)
	assert.Empty(t, rec.delays)
}

func TestGetStopsWhenContextIsCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f, err := NewFetcher(Options{
		VerifyTLS: true,
		Policy: Policy{Sleep: func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}},
	})
	require.NoError(t, err)

	_, err = f.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionKeepsCookiesFromWarmUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("welcome"))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f, err := NewSession(context.Background(), Options{
		BaseURL:   srv.URL,
		VerifyTLS: true,
		Policy:    Policy{Sleep: rec.sleep},
	})
	require.NoError(t, err)

	res, err := f.Get(context.Background(), srv.URL+"/catalog")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "welcome", string(res.Body))
}

func TestRobotsDisallowedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, err := NewSession(context.Background(), Options{
		BaseURL:       srv.URL,
		VerifyTLS:     true,
		RespectRobots: true,
		Policy:        Policy{Sleep: (&sleepRecorder{}).sleep},
	})
	require.NoError(t, err)

	_, err = f.Get(context.Background(), srv.URL+"/private/books")
	assert.ErrorIs(t, err, ErrDisallowed)

	_, err = f.Get(context.Background(), srv.URL+"/public")
	assert.NoError(t, err)
}

func TestDownloadCreatesFolders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img/cover.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, &sleepRecorder{})
	path := filepath.Join(t.TempDir(), "Images", "nested", "9785000000000.jpg")

	require.NoError(t, f.Download(context.Background(), srv.URL+`\img\cover.jpg`, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestDownloadRefusedIsNotConnectionError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	f := newTestFetcher(t, srv.URL, rec)
	path := filepath.Join(t.TempDir(), "cover.jpg")

	err := f.Download(context.Background(), srv.URL+"/cover.jpg", path)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Status)
	var fe *FetchError
	assert.False(t, errors.As(err, &fe))
	assert.Equal(t, errs.KindOther, errs.Classify(err))

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Empty(t, rec.delays)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHTMLDecodesDeclaredCharset(t *testing.T) {
	// "Привет" in windows-1251
	word := []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}
	body := append([]byte("<html><body><p>"), word...)
	body = append(body, []byte("</p></body></html>")...)

	res := &Response{
		Status: http.StatusOK,
		Body:   body,
		Header: http.Header{"Content-Type": []string{"text/html; charset=windows-1251"}},
	}
	doc, err := res.HTML()
	require.NoError(t, err)
	assert.Equal(t, "Привет", doc.Find("p").Text())
}
