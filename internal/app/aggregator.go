package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"book_spider/internal/events"
	"book_spider/internal/files"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	urlqueue "book_spider/internal/url_queue"
	"book_spider/internal/web"

	"github.com/sirupsen/logrus"
)

// Sink receives every harvested batch.
type Sink interface {
	Append(records []*models.BookRecord) error
}

// Aggregator collects the records of one job. Add is safe for concurrent
// workers; Len may be read at any time without taking the lock.
type Aggregator struct {
	out        files.Output
	session    *web.Fetcher
	resolver   shops.CoverResolver
	tracker    *events.Tracker
	log        *logrus.Entry
	skipCovers bool

	mu      sync.Mutex
	records []*models.BookRecord
	pending int
	total   atomic.Int64
}

func NewAggregator(out files.Output, session *web.Fetcher, shop shops.Shop, tracker *events.Tracker, log *logrus.Entry) *Aggregator {
	a := &Aggregator{out: out, session: session, tracker: tracker, log: log}
	if r, ok := shop.(shops.CoverResolver); ok {
		a.resolver = r
	}
	return a
}

// Add downloads the cover of rec, keeps the record and reports progress.
func (a *Aggregator) Add(ctx context.Context, rec *models.BookRecord) {
	if !a.skipCovers {
		a.saveCover(ctx, rec)
	}

	a.mu.Lock()
	a.records = append(a.records, rec)
	a.pending++
	n := a.total.Add(1)
	a.mu.Unlock()

	a.tracker.Advance(int(n))
}

func (a *Aggregator) Len() int {
	return int(a.total.Load())
}

// Flush hands the records added since the previous flush to every sink.
func (a *Aggregator) Flush(sinks ...Sink) error {
	a.mu.Lock()
	batch := append([]*models.BookRecord(nil), a.records[len(a.records)-a.pending:]...)
	a.pending = 0
	a.mu.Unlock()

	for _, s := range sinks {
		if err := s.Append(batch); err != nil {
			return err
		}
	}
	return nil
}

// CoverPath is where the cover of rec is stored, or "" when it has none.
func (a *Aggregator) CoverPath(rec *models.BookRecord) (path, src string) {
	src = rec.ImageURL
	if a.resolver != nil {
		src = a.resolver.CoverURL(rec)
	}
	name := rec.CoverName()
	if src == "" || name == "" {
		return "", ""
	}
	dir := a.out.Images
	if rec.MissingImage {
		dir = a.out.MissingImages
	}
	return filepath.Join(dir, files.NormalizeDirName(name)+urlqueue.Extension(src)), src
}

// saveCover leaves an existing file alone; a failed download keeps the record.
func (a *Aggregator) saveCover(ctx context.Context, rec *models.BookRecord) {
	path, src := a.CoverPath(rec)
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err == nil {
		return
	} else if !errors.Is(err, fs.ErrNotExist) {
		a.log.WithError(err).WithField("path", path).Warn("cannot check cover file")
		return
	}

	if err := a.session.Download(ctx, src, path); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{"isbn": rec.ISBN, "url": src}).Warn("cover not saved")
	}
}
