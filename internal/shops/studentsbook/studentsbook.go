// Package studentsbook collects books from studentsbook.net. Publishers and
// book locations come from the site's YML export; details come from the
// product pages.
package studentsbook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"unicode"

	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/files"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	urlqueue "book_spider/internal/url_queue"
	"book_spider/internal/web"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ErrUnreachable means no lookup found the product page of a feed offer.
var ErrUnreachable = errors.New("book is in the feed but not on the site")

func init() {
	shops.Register(config.ShopStudentsbook, func(sc config.ShopConfig, logic config.LogicConfig) shops.Shop {
		return New(sc, logic)
	})
}

type Shop struct {
	cfg   config.ShopConfig
	logic config.LogicConfig

	mu   sync.Mutex
	feed *feed
}

func New(cfg config.ShopConfig, logic config.LogicConfig) *Shop {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Shop{cfg: cfg, logic: logic}
}

func (s *Shop) Name() string { return config.ShopStudentsbook }

func (s *Shop) MaxWorkers() int { return s.cfg.MaxWorkers }

func (s *Shop) feedPath() string {
	return files.FeedPath(s.logic.DataDir, s.Name())
}

// DiscoverPublishers downloads a fresh export, keeps it on disk and in memory
// and groups its offers by publisher.
func (s *Shop) DiscoverPublishers(ctx context.Context, job *shops.Job) ([]models.PublisherInfo, error) {
	path := s.feedPath()
	s.mu.Lock()
	s.feed = nil
	s.mu.Unlock()

	job.Tracker.Status("downloading feed")
	if err := job.Session.Download(ctx, s.cfg.FeedURL, path); err != nil {
		return nil, err
	}

	f, err := s.loadFeed(path)
	if err != nil {
		return nil, err
	}
	if len(f.offers) == 0 {
		return nil, errs.Structure(s.Name(), "no offers in %s", s.cfg.FeedURL)
	}

	s.mu.Lock()
	s.feed = f
	s.mu.Unlock()

	var list []models.PublisherInfo
	for _, o := range f.offers {
		if o.Publisher != "" {
			list = append(list, models.PublisherInfo{Name: o.Publisher, Count: 1})
		}
	}
	if len(list) == 0 {
		return nil, errs.Structure(s.Name(), "offers in %s carry no publishers", s.cfg.FeedURL)
	}

	job.Log.WithFields(logrus.Fields{"offers": len(f.offers), "categories": len(f.categories)}).Info("feed parsed")
	return shops.CollapsePublishers(list), nil
}

func (s *Shop) loadFeed(path string) (*feed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.LocalIO(path, err)
	}
	f, err := parseFeed(raw)
	if err != nil {
		return nil, errs.Structure(s.Name(), "feed %s: %v", path, err)
	}
	return f, nil
}

// cachedFeed returns the feed of this process or the one saved by an
// earlier publishers run.
func (s *Shop) cachedFeed() (*feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feed != nil {
		return s.feed, nil
	}

	path := s.feedPath()
	if _, err := os.Stat(path); err != nil {
		return nil, errs.LocalIO(path, fmt.Errorf("feed is not downloaded, collect publishers first: %w", err))
	}
	f, err := s.loadFeed(path)
	if err != nil {
		return nil, err
	}
	s.feed = f
	return f, nil
}

func (s *Shop) DiscoverItems(ctx context.Context, job *shops.Job, batch func([]shops.Item) error) error {
	f, err := s.cachedFeed()
	if err != nil {
		return err
	}

	offers := f.byPublisher(job.Publisher.Name)
	queue := urlqueue.NewURLQueue(s.Name(), 0)
	items := make([]shops.Item, 0, len(offers))
	for _, o := range offers {
		if o.URL == "" || !queue.Add(o.URL) {
			continue
		}
		items = append(items, shops.Item{ID: o.ISBN, URL: o.URL, Data: o})
	}

	job.Tracker.SetMax(len(items))
	job.Log.WithField("total", len(items)).Info("books found in feed")
	if len(items) == 0 {
		return nil
	}
	return batch(items)
}

func (s *Shop) Extract(ctx context.Context, job *shops.Job, item shops.Item) (*models.BookRecord, error) {
	o, ok := item.Data.(*offer)
	if !ok {
		return nil, fmt.Errorf("item %s carries no feed offer", item)
	}
	f, err := s.cachedFeed()
	if err != nil {
		return nil, err
	}

	rec, err := s.lookup(ctx, job, o)
	if err != nil {
		return nil, err
	}
	rec.FillFrom(s.feedRecord(f, o))
	if rec.ImageURL == "" || s.isPlaceholder(rec.ImageURL) {
		rec.MarkMissingImage(s.cfg.MissingImageURL)
	}
	return rec, nil
}

// lookup tries the feed URL, then the URL with the author slug, then a site
// search by ISBN.
func (s *Shop) lookup(ctx context.Context, job *shops.Job, o *offer) (*models.BookRecord, error) {
	rec, err := s.detail(ctx, job, o.URL)
	if !errors.Is(err, web.ErrNotFound) {
		return rec, err
	}

	if alt := s.authorURL(o.URL, o.Author); alt != "" {
		job.Log.WithFields(logrus.Fields{"isbn": o.ISBN, "url": alt}).Debug("trying author url")
		rec, err = s.detail(ctx, job, alt)
		if !errors.Is(err, web.ErrNotFound) {
			return rec, err
		}
	}

	found, err := s.searchISBN(ctx, job, o.ISBN)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return nil, fmt.Errorf("isbn %s, %s: %w", o.ISBN, o.URL, ErrUnreachable)
	}
	if u, err := url.Parse(o.URL); err == nil && u.RawQuery != "" {
		found += "?" + u.RawQuery
	}
	rec, err = s.detail(ctx, job, found)
	if errors.Is(err, web.ErrNotFound) {
		return nil, fmt.Errorf("isbn %s, %s: %w", o.ISBN, found, ErrUnreachable)
	}
	return rec, err
}

// authorURL puts the author slug in front of the last path segment.
func (s *Shop) authorURL(rawURL, author string) string {
	if strings.TrimSpace(author) == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) < 2 {
		return ""
	}
	parts[len(parts)-2] = authorSlug(author) + parts[len(parts)-2]
	return s.cfg.BaseURL + strings.Join(parts, "/") + "?" + u.RawQuery
}

func (s *Shop) searchISBN(ctx context.Context, job *shops.Job, isbn string) (string, error) {
	if isbn == "" {
		return "", nil
	}
	searchURL := s.cfg.BaseURL + "/catalog/?q=" + url.QueryEscape(isbn) + "&s=" + url.QueryEscape("Поиск")
	res, err := job.Session.Get(ctx, searchURL)
	if err != nil {
		if errors.Is(err, web.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	doc, err := res.HTML()
	if err != nil {
		return "", err
	}

	links := doc.Find("div.catalog.block.search a")
	var href string
	switch {
	case links.Length() > 1:
		href = links.Eq(1).AttrOr("href", "")
	case links.Length() == 1:
		href = links.First().AttrOr("href", "")
	}
	if href == "" {
		return "", nil
	}
	found := urlqueue.ResolveURL(s.cfg.BaseURL+"/", href)
	if i := strings.Index(found, "?"); i >= 0 {
		found = found[:i]
	}
	return found, nil
}

var props = map[string]func(*models.BookRecord, string){
	"Жанр":                   func(r *models.BookRecord, v string) { r.Category = v },
	"Возрастные ограничения": func(r *models.BookRecord, v string) { r.AgeCategory = v },
	"Переплет":               func(r *models.BookRecord, v string) { r.Cover = v },
	"Язык":                   func(r *models.BookRecord, v string) { r.Language = v },
	"Количество страниц":     func(r *models.BookRecord, v string) { r.PageCount = v },
	"Страна производителя":   func(r *models.BookRecord, v string) { r.Country = v },
	"Серия":                  func(r *models.BookRecord, v string) { r.Series = v },
	"Автор":                  func(r *models.BookRecord, v string) { r.Authors = v },
	"Год Издания":            func(r *models.BookRecord, v string) { r.Year = v },
	"Формат":                 func(r *models.BookRecord, v string) { r.Type = v },
	"Производитель":          func(r *models.BookRecord, v string) { r.Publisher = v },
}

func (s *Shop) detail(ctx context.Context, job *shops.Job, pageURL string) (*models.BookRecord, error) {
	res, err := job.Session.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := res.HTML()
	if err != nil {
		return nil, err
	}
	rec := s.parseDetail(doc, res.FinalURL, string(res.Body))
	if rec == nil {
		return nil, shops.ErrNoRecord
	}
	rec.URL = pageURL
	return rec, nil
}

func (s *Shop) parseDetail(doc *goquery.Document, pageURL, rawHTML string) *models.BookRecord {
	info := doc.Find("div.info_item").First()
	if info.Length() == 0 {
		return nil
	}

	rec := &models.BookRecord{
		Shop:  s.Name(),
		ISBN:  strings.TrimSpace(info.Find(`span.value[itemprop="value"]`).First().Text()),
		Name:  strings.TrimSpace(info.Find("div.preview_text").First().Text()),
		Price: digits(info.Find("div.price").First().Text()),
	}

	doc.Find("table.props_list tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() < 2 {
			return
		}
		prop := strings.TrimSpace(tds.Eq(0).Text())
		if set, ok := props[prop]; ok {
			set(rec, strings.TrimSpace(tds.Eq(1).Text()))
		}
	})

	if block := doc.Find("div.detail_text").First(); block.Length() > 0 {
		var lines []string
		block.Contents().Each(func(_ int, c *goquery.Selection) {
			if line := strings.TrimSpace(c.Text()); line != "" {
				lines = append(lines, line)
			}
		})
		rec.Description = strings.Join(lines, "\n")
	} else if text, err := web.MainText(rawHTML, pageURL); err == nil {
		rec.Description = text
	}

	if src := strings.TrimSpace(doc.Find("div.slides img").First().AttrOr("src", "")); src != "" {
		if s.isPlaceholder(src) {
			rec.MarkMissingImage(s.cfg.MissingImageURL)
		} else {
			rec.ImageURL = urlqueue.ResolveURL(pageURL, src)
		}
	}
	return rec
}

func (s *Shop) isPlaceholder(imageURL string) bool {
	return s.cfg.PlaceholderImage != "" && strings.Contains(urlqueue.FileName(imageURL), s.cfg.PlaceholderImage)
}

func (s *Shop) feedRecord(f *feed, o *offer) *models.BookRecord {
	rec := &models.BookRecord{
		Shop:        s.Name(),
		ISBN:        o.ISBN,
		Name:        o.Name,
		Language:    o.Language,
		Series:      o.Series,
		Publisher:   o.Publisher,
		Authors:     o.Author,
		Category:    f.categoryPath(o.CategoryID),
		Year:        o.Year,
		Type:        o.Format,
		PageCount:   o.Pages,
		Description: o.Description,
		Price:       o.Price,
		Currency:    o.Currency,
		ExternalID:  o.ID,
		URL:         o.URL,
	}
	if o.Picture != "" {
		if s.isPlaceholder(o.Picture) {
			rec.MarkMissingImage(s.cfg.MissingImageURL)
		} else {
			rec.ImageURL = o.Picture
		}
	}
	return rec
}

// CoverURL maps a resized thumbnail back to the uploaded original:
// /upload/resize_cache/iblock/x/200_300_1/a.jpg -> /upload/iblock/x/a.jpg.
func (s *Shop) CoverURL(rec *models.BookRecord) string {
	if !strings.Contains(rec.ImageURL, "resize_cache") {
		return rec.ImageURL
	}
	parts := strings.Split(rec.ImageURL, "/")
	if len(parts) < 8 {
		return rec.ImageURL
	}
	parts = append(parts[:4], parts[5:]...)
	parts = append(parts[:6], parts[7:]...)
	return strings.Join(parts, "/")
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
