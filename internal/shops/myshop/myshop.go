// Package myshop collects books from my-shop.ru through its JSON catalogue
// API: publishers come from the manufacturer facet of the category tree.
package myshop

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"book_spider/internal/config"
	"book_spider/internal/errs"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	"book_spider/internal/web"

	"github.com/sirupsen/logrus"
)

func init() {
	shops.Register(config.ShopMyShop, func(sc config.ShopConfig, logic config.LogicConfig) shops.Shop {
		return New(sc, logic)
	})
}

type Shop struct {
	cfg   config.ShopConfig
	logic config.LogicConfig
}

func New(cfg config.ShopConfig, logic config.LogicConfig) *Shop {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 40
	}
	return &Shop{cfg: cfg, logic: logic}
}

func (s *Shop) Name() string { return config.ShopMyShop }

func (s *Shop) MaxWorkers() int { return s.cfg.MaxWorkers }

func (s *Shop) get(ctx context.Context, job *shops.Job, params map[string]string) (*web.Response, error) {
	return job.Session.Get(ctx, s.cfg.APIURL, web.WithParams(params))
}

// DiscoverPublishers walks every root category down to the nodes that carry
// the publisher facet.
func (s *Shop) DiscoverPublishers(ctx context.Context, job *shops.Job) ([]models.PublisherInfo, error) {
	w := &walker{shop: s, job: job, visited: map[string]bool{}}

	var all []models.PublisherInfo
	seen := map[models.PublisherInfo]bool{}
	for _, root := range s.cfg.RootCategories {
		found, err := w.walk(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	if len(all) == 0 {
		return nil, errs.Structure(s.Name(), "no %q facet under categories %v", s.cfg.PublisherFacet, s.cfg.RootCategories)
	}

	job.Log.WithField("count", len(all)).Info("publishers collected")
	return shops.CollapsePublishers(all), nil
}

type walker struct {
	shop    *Shop
	job     *shops.Job
	visited map[string]bool
}

func (w *walker) walk(ctx context.Context, id string) ([]models.PublisherInfo, error) {
	if id == "" || w.visited[id] {
		return nil, nil
	}
	w.visited[id] = true

	cat, err := w.category(ctx, id)
	if err != nil || cat == nil {
		return nil, err
	}

	if values, ok := w.shop.publisherFacet(cat); ok {
		return w.shop.keepCurrent(values), nil
	}

	var found []models.PublisherInfo
	seen := map[models.PublisherInfo]bool{}
	for _, sub := range cat.Subcategories {
		down, err := w.walk(ctx, sub.ID.String())
		if err != nil {
			return nil, err
		}
		for _, p := range down {
			if !seen[p] {
				seen[p] = true
				found = append(found, p)
			}
		}
		w.job.Tracker.Add(1)
	}
	return found, nil
}

// category loads one node, following a redirect reported in the body.
func (w *walker) category(ctx context.Context, id string) (*catalogue, error) {
	params := map[string]string{"q": "catalogue", "id": id, "sort": "a", "page": "1"}
	res, err := w.shop.get(ctx, w.job, params)
	if err != nil {
		return nil, err
	}
	var cat catalogue
	if err := res.JSON(&cat); err != nil {
		return nil, errs.Structure(w.shop.Name(), "category %s: %v", id, err)
	}
	if res.Status < http.StatusMultipleChoices || res.Status >= http.StatusBadRequest {
		return &cat, nil
	}

	target := redirectID(cat.Redirect)
	if target == "" {
		w.job.Log.WithFields(logrus.Fields{"category": id, "redirect": cat.Redirect}).Debug("redirect leaves the catalogue, skipping")
		return nil, nil
	}
	if w.visited[target] {
		return nil, nil
	}
	w.visited[target] = true

	params["id"] = target
	res, err = w.shop.get(ctx, w.job, params)
	if err != nil {
		return nil, err
	}
	cat = catalogue{}
	if err := res.JSON(&cat); err != nil {
		return nil, errs.Structure(w.shop.Name(), "category %s: %v", target, err)
	}
	return &cat, nil
}

// redirectID takes the category id out of "/shop/catalogue/<id>/...".
func redirectID(redirect string) string {
	if !strings.Contains(redirect, "/shop/catalogue") {
		return ""
	}
	parts := strings.Split(redirect, "/")
	if len(parts) < 4 {
		return ""
	}
	return strings.TrimSpace(parts[3])
}

func (s *Shop) publisherFacet(cat *catalogue) ([]facetValue, bool) {
	for _, f := range cat.Filter {
		if strings.EqualFold(strings.TrimSpace(f.Title), s.cfg.PublisherFacet) {
			return f.Values, true
		}
	}
	return nil, false
}

func (s *Shop) keepCurrent(values []facetValue) []models.PublisherInfo {
	out := make([]models.PublisherInfo, 0, len(values))
next:
	for _, v := range values {
		for _, marker := range s.cfg.DiscontinuedMarkers {
			if marker != "" && strings.Contains(v.Title, marker) {
				continue next
			}
		}
		out = append(out, models.PublisherInfo{Name: strings.TrimSpace(v.Title), ID: v.ID.String()})
	}
	return out
}

// DiscoverItems pages through the producer listing, one batch per page.
func (s *Shop) DiscoverItems(ctx context.Context, job *shops.Job, batch func([]shops.Item) error) error {
	if job.Publisher.ID == "" {
		return fmt.Errorf("publisher %q has no id, collect publishers first", job.Publisher.Name)
	}

	params := map[string]string{"q": "producer", "id": job.Publisher.ID, "sort": "a", "page": "1"}
	page, err := s.listing(ctx, job, params)
	if err != nil {
		return err
	}
	total, err := strconv.Atoi(page.Meta.Total.String())
	if err != nil {
		return errs.Structure(s.Name(), "listing total %q: %v", page.Meta.Total, err)
	}
	job.Tracker.SetMax(total)
	pages := int(math.Ceil(float64(total) / float64(s.cfg.PageSize)))
	job.Log.WithFields(logrus.Fields{"total": total, "pages": pages}).Info("books found")

	for n := 1; ; n++ {
		if err := batch(s.items(page)); err != nil {
			return err
		}
		if n >= pages {
			return nil
		}
		params["page"] = strconv.Itoa(n + 1)
		if page, err = s.listing(ctx, job, params); err != nil {
			return err
		}
	}
}

func (s *Shop) listing(ctx context.Context, job *shops.Job, params map[string]string) (*listing, error) {
	res, err := s.get(ctx, job, params)
	if err != nil {
		return nil, err
	}
	var l listing
	if err := res.JSON(&l); err != nil {
		return nil, errs.Structure(s.Name(), "listing page %s: %v", params["page"], err)
	}
	return &l, nil
}

func (s *Shop) items(l *listing) []shops.Item {
	items := make([]shops.Item, 0, len(l.Products))
	for _, p := range l.Products {
		id := p.ProductID.String()
		if id == "" {
			continue
		}
		items = append(items, shops.Item{ID: id, URL: s.productURL(id)})
	}
	return items
}

func (s *Shop) productURL(id string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/shop/product/" + id + ".html"
}

func (s *Shop) Extract(ctx context.Context, job *shops.Job, item shops.Item) (*models.BookRecord, error) {
	res, err := s.get(ctx, job, map[string]string{"q": "product", "id": item.ID})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Product *product `json:"product"`
	}
	if err := res.JSON(&envelope); err != nil {
		return nil, err
	}
	if envelope.Product == nil {
		return nil, shops.ErrNoRecord
	}
	rec := s.record(envelope.Product)
	if rec.ExternalID == "" {
		rec.ExternalID = item.ID
	}
	rec.URL = item.URL
	return rec, nil
}

func (s *Shop) record(p *product) *models.BookRecord {
	rec := &models.BookRecord{
		Shop:        s.Name(),
		ISBN:        strings.ReplaceAll(p.ISBN.String(), "-", ""),
		Name:        strings.TrimSpace(p.Title),
		Series:      lookup(p.About, "серия"),
		Publisher:   lookup(p.About, "издательство", "производитель"),
		Authors:     lookup(p.About, "автор", "составител"),
		Price:       p.Cost.String(),
		AgeCategory: dropNote(lookup(p.Characteristics, "возрастная категория")),
		Cover:       lookup(p.Characteristics, "переплет"),
		PageCount:   lookup(p.Characteristics, "количество страниц"),
		Weight:      lookup(p.Characteristics, "вес"),
		Grade:       lookup(p.Characteristics, "класс"),
		PaperType:   dropNote(lookup(p.Characteristics, "тип бумаги")),
		Color:       lookup(p.Characteristics, "цвет"),
		Country:     lookup(p.Characteristics, "страна изготовления"),
		Type:        lookup(p.Characteristics, "тип материала"),
		ExternalID:  p.ProductID.String(),
		Year:        strings.TrimSpace(strings.ReplaceAll(p.ManufactureDate.String(), "&nbsp;г.", "")),
	}

	langs := make([]string, 0, len(p.Lang))
	for _, l := range p.Lang {
		langs = append(langs, l.Value.String())
	}
	rec.Language = strings.Join(langs, ", ")

	rec.SetDimensions(lookup(p.Characteristics, "размеры"))

	if p.Description != "" {
		rec.Description = web.PlainText(p.Description)
	}

	if len(p.Img) > 0 && strings.TrimSpace(p.Img[0]) != "" {
		rec.ImageURL = strings.TrimRight(s.cfg.ImageHost, "/") + p.Img[0]
	} else {
		rec.MarkMissingImage(s.cfg.MissingImageURL)
	}
	return rec
}
