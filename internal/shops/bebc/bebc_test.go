package bebc

import (
	"context"
	"strings"
	"testing"
	"time"

	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/events"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	"book_spider/internal/shops/bebc/bebctest"
	"book_spider/internal/web"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(t *testing.T, base, publisher string) *shops.Job {
	t.Helper()
	f, err := web.NewFetcher(web.Options{
		BaseURL:   base,
		UserAgent: "book_spider-test",
		VerifyTLS: true,
		Policy: web.Policy{MaxAttempts: 3, Sleep: func(context.Context, time.Duration) error {
			return nil
		}},
	})
	require.NoError(t, err)
	return &shops.Job{
		ID:        "test",
		Shop:      config.ShopBebc,
		Publisher: models.PublisherInfo{Name: publisher},
		Session:   f,
		Tracker:   events.NewTracker(nil, "test", config.ShopBebc, publisher),
		Log:       logrus.NewEntry(logrus.New()),
	}
}

func newShop(base string) *Shop {
	sc := config.Default().Shops[config.ShopBebc]
	sc.BaseURL = base
	return New(sc, config.Default().Logic)
}

func TestDiscoverPublishersRetriesLanding(t *testing.T) {
	site := bebctest.NewSite()
	site.LandingFailures = 2
	defer site.Close()

	got, err := newShop(site.URL).DiscoverPublishers(context.Background(), newJob(t, site.URL, ""))
	require.NoError(t, err)
	assert.Equal(t, []models.PublisherInfo{
		{Name: "Oxford University Press"},
		{Name: "Pearson"},
		{Name: "Solo Books"},
	}, got)
}

func TestDiscoverPublishersGivesUp(t *testing.T) {
	site := bebctest.NewSite()
	site.LandingFailures = 100
	defer site.Close()

	_, err := newShop(site.URL).DiscoverPublishers(context.Background(), newJob(t, site.URL, ""))
	require.Error(t, err)
	var fe *web.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, errs.KindConnection, errs.Classify(err))
}

func TestDiscoverItemsPaginates(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()

	shop := newShop(site.URL)
	job := newJob(t, site.URL, "Oxford University Press")

	var sizes []int
	err := shop.DiscoverItems(context.Background(), job, func(items []shops.Item) error {
		sizes = append(sizes, len(items))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{18, 1}, sizes)

	_, max := job.Tracker.Snapshot()
	assert.Equal(t, 19, max)
}

func TestDiscoverItemsStopsAtEmptyPage(t *testing.T) {
	site := bebctest.NewSite()
	site.Books["Longman"] = 40
	site.EmptyFrom = 2
	defer site.Close()

	job := newJob(t, site.URL, "Longman")
	var sizes []int
	err := newShop(site.URL).DiscoverItems(context.Background(), job, func(items []shops.Item) error {
		sizes = append(sizes, len(items))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{18}, sizes)
	assert.Equal(t, 2, site.SearchCalls())
	assert.Equal(t, 0, site.ProductCalls())

	_, max := job.Tracker.Snapshot()
	assert.Equal(t, 40, max)
}

func TestDiscoverItemsSingleResult(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()

	shop := newShop(site.URL)
	job := newJob(t, site.URL, "Solo Books")

	var items []shops.Item
	require.NoError(t, shop.DiscoverItems(context.Background(), job, func(b []shops.Item) error {
		items = append(items, b...)
		return nil
	}))
	require.Len(t, items, 1)

	rec, err := shop.Extract(context.Background(), job, items[0])
	require.NoError(t, err)
	assert.Equal(t, "Solo Books", rec.Publisher)
	assert.Equal(t, 0, site.ProductCalls())
}

func TestDiscoverItemsZeroCountIsStructural(t *testing.T) {
	site := bebctest.NewSite()
	defer site.Close()

	err := newShop(site.URL).DiscoverItems(context.Background(), newJob(t, site.URL, "Nobody"),
		func([]shops.Item) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.KindStructure, errs.Classify(err))
}

func TestParseDetail(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bebctest.Product(7, "Pearson")))
	require.NoError(t, err)

	rec := newShop("https://www.bebc.co.uk").parseDetail(doc)
	require.NotNil(t, rec)

	assert.Equal(t, "Graded Reader 7", rec.Name)
	assert.Equal(t, "https://images.example/covers/7.jpg", rec.ImageURL)
	assert.False(t, rec.MissingImage)
	assert.Equal(t, "Jane Doe", rec.Authors)
	assert.Equal(t, "Pearson", rec.Publisher)
	assert.Equal(t, bebctest.ISBN(7), rec.ISBN)
	assert.Equal(t, "ELT Readers", rec.Category)
	assert.Equal(t, "12.50", rec.Price)
	assert.Equal(t, "£", rec.Currency)
	assert.Equal(t, "2019", rec.Year)
	assert.Equal(t, "A story about the sea. Level A2.", rec.Description)
}

func TestParseDetailPlaceholderImage(t *testing.T) {
	page := `<div class="product-detail"><h4>No Cover</h4>
<img src="https://www.bebc.co.uk/images/noimageavailablebig.jpg"><p>£1.00</p></div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	rec := newShop("https://www.bebc.co.uk").parseDetail(doc)
	require.NotNil(t, rec)
	assert.True(t, rec.MissingImage)
	assert.Equal(t, "1.00", rec.Price)
}

func TestParseDetailPlaceholderAnywhere(t *testing.T) {
	page := `<div class="product-detail"><h4>No Cover</h4>
<img src="https://www.bebc.co.uk/images/logo.jpg">
<img src="http://www.bebc.co.uk/images/noimageavailablebig.jpg"><p>£1.00</p></div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	rec := newShop("https://www.bebc.co.uk").parseDetail(doc)
	require.NotNil(t, rec)
	assert.True(t, rec.MissingImage)
	assert.Equal(t, "https://www.bebc.co.uk/images/logo.jpg", rec.ImageURL)
}

func TestParseDetailWithoutBlock(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><p>Sorry</p></body></html>`))
	require.NoError(t, err)
	assert.Nil(t, newShop("https://www.bebc.co.uk").parseDetail(doc))
}

func TestSearchURLEscapesPublisher(t *testing.T) {
	shop := newShop("https://www.bebc.co.uk/")
	assert.Equal(t,
		"https://www.bebc.co.uk/categories/advancedsearch?publisher=Black%20Cat%20%26%20Co&page=2",
		shop.searchURL("Black Cat & Co", 2))
}
