// Package shops defines what a site adapter must provide and the pieces the
// adapters share: the per-job context, work items and publisher helpers.
package shops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"book_spider/internal/config"
	"book_spider/internal/events"
	"book_spider/internal/models"
	"book_spider/internal/web"

	"github.com/sirupsen/logrus"
)

// ErrNoRecord marks an item whose page carries no product; it is dropped
// without a warning.
var ErrNoRecord = errors.New("no product on page")

// Item is one discovered book location. Data holds whatever the adapter
// already knows about it (a feed node, a parsed page).
type Item struct {
	ID   string
	URL  string
	Data any
}

func (i Item) String() string {
	if i.URL != "" {
		return i.URL
	}
	return i.ID
}

// Job is the context of one collection run against one shop.
type Job struct {
	ID        string
	Shop      string
	Publisher models.PublisherInfo
	Session   *web.Fetcher
	Tracker   *events.Tracker
	Log       *logrus.Entry
}

// Shop is one site backend.
type Shop interface {
	Name() string
	// MaxWorkers caps concurrent item workers; 0 means one worker per item.
	MaxWorkers() int
	DiscoverPublishers(ctx context.Context, job *Job) ([]models.PublisherInfo, error)
	// DiscoverItems hands the publisher's items over in batches; each batch is
	// harvested before the next one is discovered.
	DiscoverItems(ctx context.Context, job *Job, batch func([]Item) error) error
	Extract(ctx context.Context, job *Job, item Item) (*models.BookRecord, error)
}

// CoverResolver is implemented by shops whose record image URL is not the
// one to download.
type CoverResolver interface {
	CoverURL(rec *models.BookRecord) string
}

type Factory func(cfg config.ShopConfig, logic config.LogicConfig) Shop

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func Open(name string, cfg *config.SpiderConfig) (Shop, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown shop %q", name)
	}
	sc, err := cfg.Shop(name)
	if err != nil {
		return nil, err
	}
	return f(sc, cfg.Logic), nil
}

func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SessionOptions turns shop and logic settings into fetcher options.
func SessionOptions(sc config.ShopConfig, logic config.LogicConfig, log *logrus.Entry) web.Options {
	opts := web.Options{
		BaseURL:          sc.BaseURL,
		VerifyTLS:        sc.TLSVerify(),
		CloudflareBypass: sc.CloudflareBypass,
		RespectRobots:    sc.RespectRobots,
		Timeout:          logic.Timeout(),
		Policy: web.Policy{
			MaxAttempts: logic.MaxAttempts,
			BaseDelay:   logic.BaseDelay(),
		},
		Log: log,
	}
	if sc.SpoofBot {
		opts.UserAgent = logic.BotUserAgent
	}
	return opts
}
