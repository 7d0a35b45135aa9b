// Package web is the HTTP session every shop adapter talks through: one
// cookie-carrying client per job with the retry schedule applied to each GET.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"book_spider/internal/errs"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

var (
	ErrNotFound   = errors.New("page not found")
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("GET %s: HTTP %d after %d attempts", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("GET %s: %v after %d attempts", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Transport() bool { return true }

func (e *FetchError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// StatusError is an answer the server gave on purpose, such as 403. It is not
// retried and is not a connection failure.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

type Options struct {
	BaseURL          string
	UserAgent        string
	Headers          map[string]string
	VerifyTLS        bool
	CloudflareBypass bool
	RespectRobots    bool
	Timeout          time.Duration
	Policy           Policy
	Log              *logrus.Entry
}

type Fetcher struct {
	client    *resty.Client
	baseURL   string
	userAgent string
	policy    Policy
	robots    *robotstxt.Group
	log       *logrus.Entry
}

func NewFetcher(opts Options) (*Fetcher, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)

	if !opts.VerifyTLS {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeaders(opts.Headers)

	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Fetcher{
		client:    client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		policy:    opts.Policy,
		log:       log,
	}, nil
}

// NewSession builds a fetcher and opens the site once so the cookies the
// shop hands out on the first visit are in the jar before any real request.
func NewSession(ctx context.Context, opts Options) (*Fetcher, error) {
	f, err := NewFetcher(opts)
	if err != nil {
		return nil, err
	}
	if opts.RespectRobots {
		f.loadRobots(ctx)
	}
	if f.baseURL != "" {
		if _, err := f.Get(ctx, f.baseURL+"/"); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// loadRobots is best effort; a missing or broken robots.txt allows everything.
func (f *Fetcher) loadRobots(ctx context.Context) {
	robotsURL := f.baseURL + "/robots.txt"
	res, err := f.client.R().SetContext(ctx).Get(robotsURL)
	if err != nil {
		f.log.WithError(err).Warn("robots.txt is unavailable, ignoring")
		return
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode(), res.Body())
	if err != nil {
		f.log.WithError(err).Warn("robots.txt does not parse, ignoring")
		return
	}
	agent := f.userAgent
	if agent == "" {
		agent = "*"
	}
	f.robots = data.FindGroup(agent)
	f.log.WithField("url", robotsURL).Debug("robots.txt applied")
}

func (f *Fetcher) allowed(rawURL string) bool {
	if f.robots == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	return f.robots.Test(p)
}

type RequestOption func(*resty.Request)

func WithParams(params map[string]string) RequestOption {
	return func(r *resty.Request) { r.SetQueryParams(params) }
}

func WithHeaders(headers map[string]string) RequestOption {
	return func(r *resty.Request) { r.SetHeaders(headers) }
}

// Get fetches rawURL. Transport failures and 404 answers are repeated on the
// backoff schedule; any other status, redirects included, is handed back.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	if !f.allowed(rawURL) {
		return nil, fmt.Errorf("GET %s: %w", rawURL, ErrDisallowed)
	}

	attempts := f.policy.Attempts()
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := f.client.R().SetContext(ctx)
		for _, opt := range opts {
			opt(req)
		}
		res, err := req.Get(rawURL)

		switch {
		case err != nil:
			lastErr, lastStatus = err, 0
		case res.StatusCode() == http.StatusNotFound:
			lastErr, lastStatus = ErrNotFound, http.StatusNotFound
		default:
			return newResponse(rawURL, res), nil
		}

		f.log.WithFields(logrus.Fields{
			"url":     rawURL,
			"attempt": attempt + 1,
			"of":      attempts,
		}).WithError(lastErr).Debug("request failed")

		if attempt < attempts-1 {
			if err := f.policy.Wait(ctx, f.policy.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, &FetchError{URL: rawURL, Status: lastStatus, Attempts: attempts, Err: lastErr}
}

func newResponse(rawURL string, res *resty.Response) *Response {
	out := &Response{
		Status:   res.StatusCode(),
		Body:     res.Body(),
		FinalURL: rawURL,
		Header:   res.Header(),
	}
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		out.FinalURL = raw.Request.URL.String()
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	return out
}

// Download saves the resource at fileURL to path, creating parent folders.
func (f *Fetcher) Download(ctx context.Context, fileURL, path string) error {
	fileURL = strings.ReplaceAll(fileURL, `\`, "/")
	res, err := f.Get(ctx, fileURL)
	if err != nil {
		return err
	}
	if res.Status >= http.StatusBadRequest {
		return &StatusError{URL: fileURL, Status: res.Status}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.LocalIO(filepath.Dir(path), err)
	}
	return errs.LocalIO(path, os.WriteFile(path, res.Body, 0o644))
}

func (f *Fetcher) BaseURL() string { return f.baseURL }

func (f *Fetcher) UserAgent() string { return f.userAgent }

func (f *Fetcher) Policy() Policy { return f.policy }

func (f *Fetcher) Log() *logrus.Entry { return f.log }

// Transport is the round tripper of the session, for collectors that keep
// their own client.
func (f *Fetcher) Transport() http.RoundTripper {
	if t := f.client.GetClient().Transport; t != nil {
		return t
	}
	return http.DefaultTransport
}

// Jar exposes the session cookies.
func (f *Fetcher) Jar() http.CookieJar {
	return f.client.GetClient().Jar
}
