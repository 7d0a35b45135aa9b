package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"book_spider/internal/config"
	"book_spider/internal/db"
	"book_spider/internal/events"
	"book_spider/internal/files"
	"book_spider/internal/logging"
	"book_spider/internal/models"
	"book_spider/internal/shops"
	"book_spider/internal/web"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateIdle State = iota
	StatePublishersLoading
	StatePublisherSelected
	StateBooksLoading
)

func (s State) String() string {
	switch s {
	case StatePublishersLoading:
		return "publishers loading"
	case StatePublisherSelected:
		return "publisher selected"
	case StateBooksLoading:
		return "books loading"
	default:
		return "idle"
	}
}

var (
	ErrBusy         = errors.New("another job is running")
	ErrNoPublishers = errors.New("no publishers saved, collect publishers first")
)

// JobSummary is the outcome of one publisher's books job.
type JobSummary struct {
	Publisher string
	// Found is how many books the shop listed; Books is how many were saved.
	Found int
	Books int
	Err   error
}

type SpiderApp struct {
	config    *config.SpiderConfig
	log       *logrus.Logger
	bus       *events.Bus
	shopFiles *logging.ShopFiles
	db        Store

	// Sleep replaces real waits for retries and worker staggering.
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	state  State
	opened map[string]shops.Shop
}

// NewSpiderApp connects the record store when one is configured.
func NewSpiderApp(cfg *config.SpiderConfig, log *logrus.Logger, bus *events.Bus) (*SpiderApp, error) {
	a := &SpiderApp{
		config:    cfg,
		log:       log,
		bus:       bus,
		shopFiles: logging.NewShopFiles(log),
		opened:    map[string]shops.Shop{},
	}
	if cfg.DB.Connection != "" {
		mongoDB, err := db.NewMongoDB(cfg.DB)
		if err != nil {
			return nil, err
		}
		a.db = mongoDB
		log.WithField("database", cfg.DB.Database).Info("books are also stored in MongoDB")
	}
	return a, nil
}

func (a *SpiderApp) Close() error {
	err := a.shopFiles.Close()
	if a.db != nil {
		if dbErr := a.db.Close(); dbErr != nil && err == nil {
			err = dbErr
		}
	}
	return err
}

func (a *SpiderApp) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *SpiderApp) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// begin moves Idle to s; any other state means a job is running.
func (a *SpiderApp) begin(s State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return fmt.Errorf("%w (%s)", ErrBusy, a.state)
	}
	a.state = s
	return nil
}

// shop opens a shop once per app, so whatever it loaded in one job (the
// studentsbook feed) is still there for the next.
func (a *SpiderApp) shop(name string) (shops.Shop, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.opened[name]; ok {
		return s, nil
	}
	s, err := shops.Open(name, a.config)
	if err != nil {
		return nil, err
	}
	a.opened[name] = s
	return s, nil
}

func (a *SpiderApp) jobLog(jobID, shop, publisher string) *logrus.Entry {
	fields := logrus.Fields{"shop": shop, "job": jobID}
	if publisher != "" {
		fields["publisher"] = publisher
	}
	if a.config.Logic.WriteShopLogFile {
		if err := a.shopFiles.Attach(shop, files.ShopDir(a.config.Logic.OutputDir, shop)); err != nil {
			a.log.WithError(err).WithField("shop", shop).Warn("shop log file is unavailable")
		}
	}
	return a.log.WithFields(fields)
}

func (a *SpiderApp) session(ctx context.Context, shop string, log *logrus.Entry) (*web.Fetcher, error) {
	sc, err := a.config.Shop(shop)
	if err != nil {
		return nil, err
	}
	opts := shops.SessionOptions(sc, a.config.Logic, log)
	opts.Policy.Sleep = a.Sleep
	return web.NewSession(ctx, opts)
}

// CollectPublishers refreshes the saved publisher list of a shop.
func (a *SpiderApp) CollectPublishers(ctx context.Context, shopName string) ([]models.PublisherInfo, error) {
	if err := a.begin(StatePublishersLoading); err != nil {
		return nil, err
	}
	defer a.setState(StateIdle)

	jobID := uuid.NewString()
	tracker := events.NewTracker(a.bus, jobID, shopName, "")
	log := a.jobLog(jobID, shopName, "")

	list, err := a.collectPublishers(ctx, jobID, shopName, tracker, log)
	if err != nil {
		log.WithError(err).Error("publishers job failed")
		tracker.Fail(err)
		return nil, err
	}

	log.WithField("publishers", len(list)).Info("publishers saved")
	tracker.Result(events.Result{Publishers: list})
	return list, nil
}

func (a *SpiderApp) collectPublishers(ctx context.Context, jobID, shopName string, tracker *events.Tracker, log *logrus.Entry) ([]models.PublisherInfo, error) {
	shop, err := a.shop(shopName)
	if err != nil {
		return nil, err
	}
	session, err := a.session(ctx, shopName, log)
	if err != nil {
		return nil, err
	}

	log.Info("collecting publishers")
	job := &shops.Job{ID: jobID, Shop: shopName, Session: session, Tracker: tracker, Log: log}
	list, err := shop.DiscoverPublishers(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := files.WritePublishers(a.config.Logic.DataDir, shopName, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Publishers is the saved list of a shop.
func (a *SpiderApp) Publishers(shopName string) ([]models.PublisherInfo, error) {
	return files.ReadPublishers(a.config.Logic.DataDir, shopName)
}

// FindPublisher looks a typed name up in the saved list.
func (a *SpiderApp) FindPublisher(shopName, name string) (models.PublisherInfo, error) {
	list, err := a.Publishers(shopName)
	if err != nil {
		return models.PublisherInfo{}, err
	}
	if len(list) == 0 {
		return models.PublisherInfo{}, ErrNoPublishers
	}
	p, suggestions, ok := shops.FindPublisher(list, name)
	if ok {
		return p, nil
	}
	if len(suggestions) > 0 {
		return models.PublisherInfo{}, fmt.Errorf("publisher %q is unknown, did you mean: %s", name, strings.Join(suggestions, ", "))
	}
	return models.PublisherInfo{}, fmt.Errorf("publisher %q is unknown", name)
}

// CollectBooks runs one books job for one publisher.
func (a *SpiderApp) CollectBooks(ctx context.Context, shopName string, publisher models.PublisherInfo) (int, error) {
	if err := a.begin(StatePublisherSelected); err != nil {
		return 0, err
	}
	defer a.setState(StateIdle)
	s := a.collectBooks(ctx, shopName, publisher)
	return s.Books, s.Err
}

func (a *SpiderApp) collectBooks(ctx context.Context, shopName string, publisher models.PublisherInfo) JobSummary {
	a.setState(StatePublisherSelected)
	jobID := uuid.NewString()
	tracker := events.NewTracker(a.bus, jobID, shopName, publisher.Name)
	log := a.jobLog(jobID, shopName, publisher.Name)

	a.setState(StateBooksLoading)
	books, err := a.harvestBooks(ctx, jobID, shopName, publisher, tracker, log)
	_, found := tracker.Snapshot()
	summary := JobSummary{Publisher: publisher.Name, Found: found, Books: books, Err: err}
	if err != nil {
		log.WithError(err).Error("books job failed")
		tracker.Fail(err)
		return summary
	}

	log.WithFields(logrus.Fields{"books": books, "found": found}).Info("books job finished")
	tracker.Result(events.Result{BooksCount: books})
	return summary
}

func (a *SpiderApp) harvestBooks(ctx context.Context, jobID, shopName string, publisher models.PublisherInfo, tracker *events.Tracker, log *logrus.Entry) (int, error) {
	shop, err := a.shop(shopName)
	if err != nil {
		return 0, err
	}

	out := files.OutputFor(a.config.Logic.OutputDir, shopName, publisher.Name)
	if err := out.Prepare(); err != nil {
		return 0, err
	}
	sinks := []Sink{files.NewWorkbook(out.Workbook)}
	if a.db != nil {
		sinks = append(sinks, a.db)
	}

	session, err := a.session(ctx, shopName, log)
	if err != nil {
		return 0, err
	}

	job := &shops.Job{
		ID:        jobID,
		Shop:      shopName,
		Publisher: publisher,
		Session:   session,
		Tracker:   tracker,
		Log:       log,
	}
	agg := NewAggregator(out, session, shop, tracker, log)
	agg.skipCovers = a.config.Logic.SkipCovers
	harvester := &Harvester{
		MaxWorkers: shop.MaxWorkers(),
		Stagger:    a.config.Logic.Stagger(),
		Sleep:      a.Sleep,
	}

	log.WithField("dir", out.Dir).Info("collecting books")
	err = shop.DiscoverItems(ctx, job, func(items []shops.Item) error {
		harvester.Run(ctx, job, shop, items, agg)
		return agg.Flush(sinks...)
	})
	return agg.Len(), err
}

// CollectRange runs the books jobs of the saved publishers from..to
// (inclusive, zero-based) one after another. A failed job is recorded and the
// next publisher starts; cancelling ctx stops before the next job.
func (a *SpiderApp) CollectRange(ctx context.Context, shopName string, from, to int) ([]JobSummary, error) {
	if from < 0 || from > to {
		return nil, fmt.Errorf("invalid publisher range %d..%d", from, to)
	}
	list, err := a.Publishers(shopName)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoPublishers
	}
	if to >= len(list) {
		return nil, fmt.Errorf("invalid publisher range %d..%d, %d publishers saved", from, to, len(list))
	}
	return a.runRange(ctx, shopName, list, from, to)
}

// CollectAll runs the books jobs of every saved publisher.
func (a *SpiderApp) CollectAll(ctx context.Context, shopName string) ([]JobSummary, error) {
	list, err := a.Publishers(shopName)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoPublishers
	}
	return a.runRange(ctx, shopName, list, 0, len(list)-1)
}

func (a *SpiderApp) runRange(ctx context.Context, shopName string, list []models.PublisherInfo, from, to int) ([]JobSummary, error) {
	if err := a.begin(StatePublisherSelected); err != nil {
		return nil, err
	}
	defer a.setState(StateIdle)

	summary := make([]JobSummary, 0, to-from+1)
	for i := from; i <= to; i++ {
		if err := ctx.Err(); err != nil {
			a.log.WithField("shop", shopName).Warn("range stopped before publisher ", i)
			return summary, err
		}
		summary = append(summary, a.collectBooks(ctx, shopName, list[i]))
	}

	a.log.WithFields(logrus.Fields{"shop": shopName, "jobs": len(summary)}).Info("range finished")
	return summary, nil
}
