package app

import (
	"errors"
	"fmt"
	"strings"

	"book_spider/internal/db"
	"book_spider/internal/models"
)

var (
	ErrNoStore      = errors.New("no database configured, set db.connection")
	ErrBookNotFound = errors.New("book is not stored")
)

// Store keeps every collected book across runs, next to the workbooks.
type Store interface {
	Sink
	GetBook(shop, key string) (*models.BookRecord, error)
	GetShopStats(shop string) (db.ShopStats, error)
	Close() error
}

func (a *SpiderApp) HasStore() bool { return a.db != nil }

// StoredBook looks a book up by its key ("isbn:...", "id:...", "url:...").
// A bare value is taken as an ISBN.
func (a *SpiderApp) StoredBook(shopName, key string) (*models.BookRecord, error) {
	if a.db == nil {
		return nil, ErrNoStore
	}
	key = strings.TrimSpace(key)
	if !strings.Contains(key, ":") {
		key = "isbn:" + key
	}
	rec, err := a.db.GetBook(shopName, key)
	if err != nil {
		return nil, fmt.Errorf("get %s from %s: %w", key, shopName, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%s in %s: %w", key, shopName, ErrBookNotFound)
	}
	return rec, nil
}

func (a *SpiderApp) StoredStats(shopName string) (db.ShopStats, error) {
	if a.db == nil {
		return db.ShopStats{}, ErrNoStore
	}
	return a.db.GetShopStats(shopName)
}
