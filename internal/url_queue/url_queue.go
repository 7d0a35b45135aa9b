package urlqueue

import (
	"net/url"
	"strings"
	"sync"
)

// URLQueue hands out every distinct URL once. Two URLs are the same when
// their normalized forms match; the queue keeps the URL as it was added.
type URLQueue struct {
	URLs   map[string]bool
	Queue  []string
	Source string
	Limit  int
	mu     sync.Mutex
}

func NewURLQueue(source string, limit int) *URLQueue {
	return &URLQueue{
		URLs:   make(map[string]bool),
		Queue:  make([]string, 0),
		Source: source,
		Limit:  limit,
	}
}

// Add reports whether urlStr was new and fit under the limit.
func (q *URLQueue) Add(urlStr string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Limit > 0 && len(q.URLs) >= q.Limit {
		return false
	}
	normalized := NormalizeURL(urlStr)
	if q.URLs[normalized] {
		return false
	}
	q.URLs[normalized] = true
	q.Queue = append(q.Queue, urlStr)
	return true
}

func (q *URLQueue) Get() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.Queue) == 0 {
		return "", false
	}
	u := q.Queue[0]
	q.Queue = q.Queue[1:]
	return u, true
}

// Drain empties the queue and returns what was waiting, in insertion order.
func (q *URLQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.Queue
	q.Queue = make([]string, 0)
	return out
}

func (q *URLQueue) Seen(urlStr string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.URLs[NormalizeURL(urlStr)]
}

func (q *URLQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Queue)
}

func NormalizeURL(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return urlStr
	}

	parsed.Fragment = ""
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	return parsed.String()
}

// ResolveURL makes href absolute against pageURL. Empty, fragment-only and
// mailto links resolve to "".
func ResolveURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
