// Package events carries job progress, results and errors from the core to
// whatever front end subscribed.
package events

import (
	"sync"

	"book_spider/internal/errs"
	"book_spider/internal/models"
)

type Type int

const (
	TypeProgress Type = iota
	TypeStatus
	TypeResult
	TypeError
)

func (t Type) String() string {
	switch t {
	case TypeProgress:
		return "progress"
	case TypeStatus:
		return "status"
	case TypeResult:
		return "result"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

type Result struct {
	BooksCount int
	Publishers []models.PublisherInfo
}

type Event struct {
	Type      Type
	JobID     string
	Shop      string
	Publisher string

	Current int
	Max     int
	Text    string

	Result  *Result
	Err     error
	ErrKind errs.Kind
}

type Handler func(Event)

type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(e)
	}
}

// Tracker is the (current, max) pair of one job.
type Tracker struct {
	bus       *Bus
	jobID     string
	shop      string
	publisher string

	mu      sync.Mutex
	current int
	max     int
}

func NewTracker(bus *Bus, jobID, shop, publisher string) *Tracker {
	return &Tracker{bus: bus, jobID: jobID, shop: shop, publisher: publisher}
}

func (t *Tracker) base(typ Type) Event {
	return Event{Type: typ, JobID: t.jobID, Shop: t.shop, Publisher: t.publisher}
}

// SetMax starts a new (0, max) range.
func (t *Tracker) SetMax(max int) {
	t.mu.Lock()
	t.current, t.max = 0, max
	e := t.base(TypeProgress)
	e.Current, e.Max = 0, max
	t.mu.Unlock()
	t.bus.Publish(e)
}

func (t *Tracker) Add(delta int) {
	t.mu.Lock()
	t.current += delta
	e := t.base(TypeProgress)
	e.Current, e.Max = t.current, t.max
	t.mu.Unlock()
	t.bus.Publish(e)
}

// Advance moves current to v; values behind the current one are ignored.
func (t *Tracker) Advance(v int) {
	t.mu.Lock()
	if v <= t.current {
		t.mu.Unlock()
		return
	}
	t.current = v
	e := t.base(TypeProgress)
	e.Current, e.Max = t.current, t.max
	t.mu.Unlock()
	t.bus.Publish(e)
}

func (t *Tracker) Status(text string) {
	e := t.base(TypeStatus)
	e.Text = text
	t.bus.Publish(e)
}

func (t *Tracker) Snapshot() (current, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.max
}

func (t *Tracker) Result(r Result) {
	e := t.base(TypeResult)
	e.Result = &r
	t.bus.Publish(e)
}

func (t *Tracker) Fail(err error) {
	e := t.base(TypeError)
	e.Err = err
	e.ErrKind = errs.Classify(err)
	e.Text = errs.Describe(err)
	t.bus.Publish(e)
}
