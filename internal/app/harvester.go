package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"book_spider/internal/shops"
	"book_spider/internal/web"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Harvester extracts a batch of items with one goroutine per item.
type Harvester struct {
	// MaxWorkers caps how many items are extracted at once; 0 means no cap.
	MaxWorkers int
	// Stagger delays the start of worker i by Stagger*i (i modulo the cap).
	Stagger time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

func (h *Harvester) delay(i int) time.Duration {
	if h.MaxWorkers > 0 {
		i %= h.MaxWorkers
	}
	return h.Stagger * time.Duration(i)
}

func (h *Harvester) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return web.Policy{Sleep: h.Sleep}.Wait(ctx, d)
}

// Run blocks until every item of the batch is extracted or dropped. A failed
// item is logged and skipped; it never stops its siblings.
func (h *Harvester) Run(ctx context.Context, job *shops.Job, shop shops.Shop, items []shops.Item, agg *Aggregator) {
	var sem *semaphore.Weighted
	if h.MaxWorkers > 0 {
		sem = semaphore.NewWeighted(int64(h.MaxWorkers))
	}

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item shops.Item) {
			defer wg.Done()

			if err := h.wait(ctx, h.delay(i)); err != nil {
				return
			}
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
			}
			h.harvest(ctx, job, shop, item, agg)
		}(i, item)
	}
	wg.Wait()
}

func (h *Harvester) harvest(ctx context.Context, job *shops.Job, shop shops.Shop, item shops.Item, agg *Aggregator) {
	log := job.Log.WithFields(logrus.Fields{"isbn": item.ID, "url": item.URL})

	rec, err := shop.Extract(ctx, job, item)
	switch {
	case errors.Is(err, shops.ErrNoRecord):
		log.Debug("no product on page, skipped")
		return
	case err != nil:
		log.WithError(err).Warn("book dropped")
		return
	case rec == nil:
		return
	}
	agg.Add(ctx, rec)
}
