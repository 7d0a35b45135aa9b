// Package bebc collects books from bebc.co.uk, a plain HTML catalogue with a
// publisher search paginated at 18 results.
package bebc

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	urlqueue "book_spider/internal/url_queue"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

func init() {
	shops.Register(config.ShopBebc, func(sc config.ShopConfig, logic config.LogicConfig) shops.Shop {
		return New(sc, logic)
	})
}

var leadingDigits = regexp.MustCompile(`^\d{1,4}`)

type Shop struct {
	cfg   config.ShopConfig
	logic config.LogicConfig
}

func New(cfg config.ShopConfig, logic config.LogicConfig) *Shop {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 18
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Shop{cfg: cfg, logic: logic}
}

func (s *Shop) Name() string { return config.ShopBebc }

func (s *Shop) MaxWorkers() int { return s.cfg.MaxWorkers }

func (s *Shop) searchURL(publisher string, page int) string {
	escaped := strings.ReplaceAll(url.QueryEscape(publisher), "+", "%20")
	return fmt.Sprintf("%s/categories/advancedsearch?publisher=%s&page=%d", s.cfg.BaseURL, escaped, page)
}

type searchPage struct {
	url string
	doc *goquery.Document
}

func (s *Shop) search(ctx context.Context, job *shops.Job, page int) (*searchPage, error) {
	res, err := job.Session.Get(ctx, s.searchURL(job.Publisher.Name, page))
	if err != nil {
		return nil, err
	}
	doc, err := res.HTML()
	if err != nil {
		return nil, err
	}
	return &searchPage{url: res.FinalURL, doc: doc}, nil
}

// totalCount reads Y out of the "X of Y" label. A page without a readable
// label counts as one result: the search went straight to the product.
func totalCount(doc *goquery.Document) int {
	text := doc.Find("div.listing p").First().Text()
	i := strings.Index(text, " of ")
	if i < 0 {
		return 1
	}
	fields := strings.Fields(text[i+4:])
	if len(fields) == 0 {
		return 1
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return 1
	}
	return n
}

func (s *Shop) DiscoverItems(ctx context.Context, job *shops.Job, batch func([]shops.Item) error) error {
	first, err := s.search(ctx, job, 1)
	if err != nil {
		return err
	}

	count := totalCount(first.doc)
	if count == 0 {
		return errs.Structure(s.Name(), "no books count for publisher %q at %s", job.Publisher.Name, first.url)
	}
	job.Tracker.SetMax(count)

	if count == 1 {
		return batch([]shops.Item{{URL: first.url, Data: first.doc}})
	}

	pages := int(math.Ceil(float64(count) / float64(s.cfg.PageSize)))
	job.Log.WithFields(logrus.Fields{"total": count, "pages": pages}).Info("books found")

	queue := urlqueue.NewURLQueue(s.Name(), 0)
	for n := 1; n <= pages; n++ {
		page := first
		if n > 1 {
			if page, err = s.search(ctx, job, n); err != nil {
				return err
			}
		}

		products := page.doc.Find(".product-item")
		if products.Length() == 0 {
			job.Log.WithField("page", n).Debug("empty result page, stopping")
			break
		}
		products.Each(func(_ int, item *goquery.Selection) {
			href, ok := item.Find("a").First().Attr("href")
			link := urlqueue.ResolveURL(page.url, href)
			if !ok || link == "" {
				job.Log.WithField("page", n).Debug("product item without a link")
				return
			}
			queue.Add(link)
		})

		links := queue.Drain()
		items := make([]shops.Item, 0, len(links))
		for _, link := range links {
			items = append(items, shops.Item{URL: link})
		}
		if err := batch(items); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shop) Extract(ctx context.Context, job *shops.Job, item shops.Item) (*models.BookRecord, error) {
	doc, ok := item.Data.(*goquery.Document)
	if !ok {
		res, err := job.Session.Get(ctx, item.URL)
		if err != nil {
			return nil, err
		}
		if doc, err = res.HTML(); err != nil {
			return nil, err
		}
	}

	rec := s.parseDetail(doc)
	if rec == nil {
		return nil, shops.ErrNoRecord
	}
	rec.URL = item.URL
	return rec, nil
}

func (s *Shop) parseDetail(doc *goquery.Document) *models.BookRecord {
	detail := doc.Find(".product-detail").First()
	if detail.Length() == 0 {
		return nil
	}

	rec := &models.BookRecord{
		Shop: s.Name(),
		Name: strings.TrimSpace(detail.Find("h4").First().Text()),
	}

	detail.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			return
		}
		if strings.HasPrefix(src, "https") && strings.HasSuffix(src, ".jpg") {
			rec.ImageURL = src
		}
		if s.cfg.PlaceholderImage != "" && urlqueue.FileName(src) == s.cfg.PlaceholderImage {
			rec.MissingImage = true
		}
	})

	if em := detail.Find("em").First(); em.Length() > 0 {
		authors, publisher, found := strings.Cut(em.Text(), "Published by")
		if found {
			rec.Publisher = strings.TrimSpace(publisher)
		}
		authors = strings.TrimSpace(authors)
		rec.Authors = strings.TrimSpace(strings.TrimPrefix(authors, "by "))
	}

	detail.Find("li").Each(func(_ int, li *goquery.Selection) {
		text := li.Text()
		switch {
		case strings.Contains(text, "ISBN:"):
			rec.ISBN = strings.TrimSpace(strings.Replace(text, "ISBN:", "", 1))
		case strings.Contains(text, "Category:"):
			rec.Category = strings.TrimSpace(strings.Replace(text, "Category:", "", 1))
		}
	})

	var description []string
	detail.Find("p").Each(func(i int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		switch {
		case i == 0:
			rec.Price, rec.Currency = price(text)
		case strings.HasPrefix(text, "Published "):
			rec.Year = leadingDigits.FindString(strings.TrimSpace(strings.TrimPrefix(text, "Published ")))
		case text != "" && !strings.Contains(text, "Add to Cart"):
			description = append(description, text)
		}
	})
	rec.Description = strings.TrimSpace(strings.Join(description, " "))

	return rec
}

// price splits "£12.50 inc VAT" into "12.50" and "£".
func price(text string) (amount, currency string) {
	runes := []rune(text)
	if len(runes) == 0 {
		return "", ""
	}
	currency = string(runes[0])
	rest := strings.TrimSpace(string(runes[1:]))
	amount, _, _ = strings.Cut(rest, " ")
	return amount, currency
}
