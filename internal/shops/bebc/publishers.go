package bebc

import (
	"context"
	"strconv"
	"strings"

	"book_spider/internal/errs"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	"book_spider/internal/web"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"github.com/sirupsen/logrus"
)

// DiscoverPublishers reads the options of the first <select> on the landing
// page; the first option is the "all publishers" prompt.
func (s *Shop) DiscoverPublishers(ctx context.Context, job *shops.Job) ([]models.PublisherInfo, error) {
	landing := s.cfg.BaseURL + "/"
	policy := job.Session.Policy()

	c := colly.NewCollector()
	c.WithTransport(job.Session.Transport())
	c.SetRequestTimeout(s.logic.Timeout())
	if ua := job.Session.UserAgent(); ua != "" {
		c.UserAgent = ua
	}

	var (
		names     []string
		seenForm  bool
		succeeded bool
		lastErr   error
		status    int
		attempts  int
	)

	c.OnResponse(func(r *colly.Response) {
		succeeded = true
	})

	c.OnHTML("select", func(e *colly.HTMLElement) {
		if seenForm {
			return
		}
		seenForm = true
		e.DOM.Find("option").Each(func(i int, opt *goquery.Selection) {
			if i == 0 {
				return
			}
			if name := strings.TrimSpace(opt.Text()); name != "" {
				names = append(names, name)
			}
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		attempt, _ := strconv.Atoi(r.Ctx.Get("attempt"))
		attempts = attempt + 1
		lastErr, status = err, r.StatusCode

		job.Log.WithFields(logrus.Fields{
			"url":     landing,
			"attempt": attempts,
			"status":  r.StatusCode,
		}).WithError(err).Debug("landing page failed")

		retryable := r.StatusCode == 0 || r.StatusCode == 404
		if !retryable || attempts >= policy.Attempts() || ctx.Err() != nil {
			return
		}
		if policy.Wait(ctx, policy.Backoff(attempt)) != nil {
			return
		}
		r.Ctx.Put("attempt", strconv.Itoa(attempts))
		if err := r.Request.Retry(); err != nil && !succeeded {
			lastErr = err
		}
	})

	visitErr := c.Visit(landing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !succeeded {
		if lastErr == nil {
			lastErr = visitErr
		}
		return nil, &web.FetchError{URL: landing, Status: status, Attempts: attempts, Err: lastErr}
	}

	if !seenForm || len(names) == 0 {
		return nil, errs.Structure(s.Name(), "no publishers found on %s", landing)
	}

	list := make([]models.PublisherInfo, 0, len(names))
	for _, name := range names {
		list = append(list, models.PublisherInfo{Name: name})
	}
	list = shops.CollapsePublishers(list)
	// the landing page has no counts, keep the saved list to bare names
	for i := range list {
		list[i].Count = 0
	}
	return list, nil
}
