package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"book_spider/internal/config"
	"book_spider/internal/events"
	"book_spider/internal/files"
	"book_spider/internal/logging"
	"book_spider/internal/models"
	_ "book_spider/internal/shops/studentsbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedXML = `<?xml version="1.0" encoding="utf-8"?>
<yml_catalog><shop><categories><category id="1">Книги</category></categories>
<offers>
<offer id="1"><url>%[1]s/catalog/books/1/?r=yml</url><price>100</price><categoryId>1</categoryId><name>Первая</name><publisher>Oxford</publisher><ISBN>9780000000001</ISBN></offer>
<offer id="2"><url>%[1]s/catalog/books/2/?r=yml</url><price>200</price><categoryId>1</categoryId><name>Вторая</name><publisher>Oxford</publisher><ISBN>9780000000002</ISBN></offer>
<offer id="3"><url>%[1]s/catalog/books/3/?r=yml</url><price>300</price><categoryId>1</categoryId><name>Третья</name><publisher>Pearson</publisher><ISBN>9780000000003</ISBN></offer>
</offers></shop></yml_catalog>`

const feedPage = `<html><body><div class="info_item">
<span class="value" itemprop="value">%s</span><div class="preview_text">%s</div><div class="price">100</div>
</div></body></html>`

type feedSite struct {
	*httptest.Server
	feedCalls atomic.Int32
}

func newFeedSite(t *testing.T) *feedSite {
	t.Helper()
	site := &feedSite{}
	pages := map[string][2]string{
		"/catalog/books/1/": {"9780000000001", "Первая"},
		"/catalog/books/2/": {"9780000000002", "Вторая"},
		"/catalog/books/3/": {"9780000000003", "Третья"},
	}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return
		}
		if r.URL.Path == "/feed.xml" {
			site.feedCalls.Add(1)
			fmt.Fprintf(w, feedXML, "http://"+r.Host)
			return
		}
		if p, ok := pages[r.URL.Path]; ok {
			fmt.Fprintf(w, feedPage, p[0], p[1])
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(site.Close)
	return site
}

func newFeedApp(t *testing.T, site *feedSite) (*SpiderApp, *config.SpiderConfig) {
	t.Helper()
	cfg := config.Default()
	cfg.Logic.OutputDir = t.TempDir()
	cfg.Logic.DataDir = t.TempDir()
	cfg.Logic.SkipCovers = true
	sc := cfg.Shops[config.ShopStudentsbook]
	sc.BaseURL = site.URL
	sc.FeedURL = site.URL + "/feed.xml"
	cfg.Shops[config.ShopStudentsbook] = sc

	a, err := NewSpiderApp(cfg, logging.New("debug", io.Discard), events.NewBus())
	require.NoError(t, err)
	a.Sleep = noSleep
	t.Cleanup(func() { _ = a.Close() })
	return a, cfg
}

func TestFeedIsKeptBetweenJobs(t *testing.T) {
	site := newFeedSite(t)
	a, cfg := newFeedApp(t, site)

	list, err := a.CollectPublishers(context.Background(), config.ShopStudentsbook)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, os.Remove(files.FeedPath(cfg.Logic.DataDir, config.ShopStudentsbook)))

	books, err := a.CollectBooks(context.Background(), config.ShopStudentsbook, models.PublisherInfo{Name: "Oxford"})
	require.NoError(t, err)
	assert.Equal(t, 2, books)

	summary, err := a.CollectAll(context.Background(), config.ShopStudentsbook)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	for _, s := range summary {
		assert.NoError(t, s.Err)
	}
	assert.EqualValues(t, 1, site.feedCalls.Load())
}

func TestPublishersJobDownloadsFeedAgain(t *testing.T) {
	site := newFeedSite(t)
	a, cfg := newFeedApp(t, site)

	_, err := a.CollectPublishers(context.Background(), config.ShopStudentsbook)
	require.NoError(t, err)
	_, err = a.CollectPublishers(context.Background(), config.ShopStudentsbook)
	require.NoError(t, err)
	assert.EqualValues(t, 2, site.feedCalls.Load())

	_, err = os.Stat(files.FeedPath(cfg.Logic.DataDir, config.ShopStudentsbook))
	assert.NoError(t, err)
}
