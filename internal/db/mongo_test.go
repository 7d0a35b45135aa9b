package db

import (
	"testing"
	"time"

	"book_spider/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookDocumentCarriesKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rec := &models.BookRecord{
		Shop:         "bebc.co.uk",
		ISBN:         "9780194038720",
		Name:         "English File",
		MissingImage: true,
	}

	doc, err := bookDocument(rec, now)
	require.NoError(t, err)

	assert.Equal(t, "isbn:9780194038720", doc["key"])
	assert.Equal(t, int64(1700000000), doc["last_scraped"])
	assert.Equal(t, "English File", doc["name"])
	assert.Equal(t, true, doc["missing_image"])
	assert.NotContains(t, doc, "_id")
	assert.NotContains(t, doc, "currency")
}

func TestBookDocumentPrefersExternalID(t *testing.T) {
	doc, err := bookDocument(&models.BookRecord{Shop: "my-shop.ru", ExternalID: "555", ISBN: "1"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "id:555", doc["key"])
}
