package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/events"
	"book_spider/internal/files"
	"book_spider/internal/logging"
	"book_spider/internal/models"
	_ "book_spider/internal/shops/bebc"
	"book_spider/internal/shops/bebc/bebctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(typ events.Type) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestApp(t *testing.T, site *bebctest.Site) (*SpiderApp, *config.SpiderConfig, *eventLog) {
	t.Helper()
	cfg := config.Default()
	cfg.Logic.OutputDir = t.TempDir()
	cfg.Logic.DataDir = t.TempDir()
	cfg.Logic.SkipCovers = true
	sc := cfg.Shops[config.ShopBebc]
	sc.BaseURL = site.URL
	cfg.Shops[config.ShopBebc] = sc

	bus := events.NewBus()
	rec := &eventLog{}
	bus.Subscribe(rec.handle)

	a, err := NewSpiderApp(cfg, logging.New("debug", io.Discard), bus)
	require.NoError(t, err)
	a.Sleep = noSleep
	t.Cleanup(func() { _ = a.Close() })
	return a, cfg, rec
}

func workbookISBNs(t *testing.T, path string) []string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, files.Headers[0], rows[0][0])

	var isbns []string
	for _, row := range rows[1:] {
		isbns = append(isbns, row[0])
	}
	return isbns
}

func TestCollectBooksEndToEnd(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()
	a, cfg, rec := newTestApp(t, site)

	publisher := models.PublisherInfo{Name: "Oxford University Press"}
	books, err := a.CollectBooks(context.Background(), config.ShopBebc, publisher)
	require.NoError(t, err)
	assert.Equal(t, 19, books)
	assert.Equal(t, 19, site.ProductCalls())
	assert.Equal(t, StateIdle, a.State())

	out := files.OutputFor(cfg.Logic.OutputDir, config.ShopBebc, publisher.Name)
	isbns := workbookISBNs(t, out.Workbook)
	assert.Len(t, isbns, 19)
	unique := map[string]bool{}
	for _, isbn := range isbns {
		unique[isbn] = true
	}
	assert.Len(t, unique, 19)
	assert.True(t, unique[bebctest.ISBN(19)])

	results := rec.ofType(events.TypeResult)
	require.Len(t, results, 1)
	assert.Equal(t, 19, results[0].Result.BooksCount)
	assert.NotEmpty(t, results[0].JobID)

	var maxSeen int
	for _, e := range rec.ofType(events.TypeProgress) {
		if e.Max > maxSeen {
			maxSeen = e.Max
		}
	}
	assert.Equal(t, 19, maxSeen)

	_, err = os.Stat(filepath.Join(files.ShopDir(cfg.Logic.OutputDir, config.ShopBebc), "logs.txt"))
	assert.NoError(t, err)
}

func TestCollectPublishersSavesList(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()
	a, _, rec := newTestApp(t, site)

	list, err := a.CollectPublishers(context.Background(), config.ShopBebc)
	require.NoError(t, err)
	require.Len(t, list, 3)

	saved, err := a.Publishers(config.ShopBebc)
	require.NoError(t, err)
	assert.Equal(t, list, saved)

	p, err := a.FindPublisher(config.ShopBebc, "pearson")
	require.NoError(t, err)
	assert.Equal(t, "Pearson", p.Name)

	_, err = a.FindPublisher(config.ShopBebc, "Oxford Univercity Press")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Oxford University Press")

	results := rec.ofType(events.TypeResult)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Result.Publishers, 3)
}

func TestCollectRangeContinuesAfterFailure(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()
	a, cfg, rec := newTestApp(t, site)

	require.NoError(t, files.WritePublishers(cfg.Logic.DataDir, config.ShopBebc, []models.PublisherInfo{
		{Name: "Pearson"}, {Name: "Nobody"}, {Name: "Solo Books"},
	}))

	summary, err := a.CollectRange(context.Background(), config.ShopBebc, 0, 2)
	require.NoError(t, err)
	require.Len(t, summary, 3)

	assert.Equal(t, "Pearson", summary[0].Publisher)
	assert.Equal(t, 3, summary[0].Books)
	assert.Equal(t, 3, summary[0].Found)
	assert.NoError(t, summary[0].Err)

	assert.Equal(t, "Nobody", summary[1].Publisher)
	assert.Equal(t, errs.KindStructure, errs.Classify(summary[1].Err))

	assert.Equal(t, 1, summary[2].Books)
	assert.Equal(t, 1, summary[2].Found)
	assert.NoError(t, summary[2].Err)

	failures := rec.ofType(events.TypeError)
	require.Len(t, failures, 1)
	assert.Equal(t, "Nobody", failures[0].Publisher)
	assert.Equal(t, errs.KindStructure, failures[0].ErrKind)
	assert.Equal(t, StateIdle, a.State())
}

func TestCollectRangeValidation(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()
	a, cfg, _ := newTestApp(t, site)

	_, err := a.CollectAll(context.Background(), config.ShopBebc)
	assert.ErrorIs(t, err, ErrNoPublishers)

	require.NoError(t, files.WritePublishers(cfg.Logic.DataDir, config.ShopBebc, []models.PublisherInfo{
		{Name: "Pearson"}, {Name: "Solo Books"},
	}))

	_, err = a.CollectRange(context.Background(), config.ShopBebc, 1, 0)
	assert.Error(t, err)
	_, err = a.CollectRange(context.Background(), config.ShopBebc, 0, 2)
	assert.Error(t, err)
	_, err = a.CollectRange(context.Background(), config.ShopBebc, -1, 1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := a.CollectAll(ctx, config.ShopBebc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary)
	assert.Equal(t, 0, site.ProductCalls())
}

func TestOneJobAtATime(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()
	a, _, _ := newTestApp(t, site)

	require.NoError(t, a.begin(StateBooksLoading))
	_, err := a.CollectBooks(context.Background(), config.ShopBebc, models.PublisherInfo{Name: "Pearson"})
	assert.ErrorIs(t, err, ErrBusy)
	a.setState(StateIdle)

	_, err = a.CollectBooks(context.Background(), config.ShopBebc, models.PublisherInfo{Name: "Pearson"})
	assert.NoError(t, err)
}
