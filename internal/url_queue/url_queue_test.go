package urlqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueDeduplicatesNormalizedURLs(t *testing.T) {
	q := NewURLQueue("bebc.co.uk", 0)

	assert.True(t, q.Add("https://www.bebc.co.uk/book/1"))
	assert.False(t, q.Add("https://bebc.co.uk/book/1#reviews"))
	assert.True(t, q.Add("https://www.bebc.co.uk/book/2"))

	assert.True(t, q.Seen("https://BEBC.co.uk/book/2"))
	assert.Equal(t, 2, q.Size())

	first, ok := q.Get()
	assert.True(t, ok)
	assert.Equal(t, "https://www.bebc.co.uk/book/1", first)

	assert.Equal(t, []string{"https://www.bebc.co.uk/book/2"}, q.Drain())
	_, ok = q.Get()
	assert.False(t, ok)
}

func TestQueueLimitAndConcurrentAdds(t *testing.T) {
	q := NewURLQueue("s", 5)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Add("https://s/" + string(rune('a'+i%10)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, q.Size())
}

func TestResolveURL(t *testing.T) {
	page := "https://studentsbook.net/catalog/?q=978&s=x"
	assert.Equal(t, "https://studentsbook.net/catalog/books/12/", ResolveURL(page, "/catalog/books/12/"))
	assert.Equal(t, "https://other.net/a", ResolveURL(page, "https://other.net/a"))
	assert.Empty(t, ResolveURL(page, "#top"))
	assert.Empty(t, ResolveURL(page, "mailto:a@b.c"))
}

func TestFileNameAndExtension(t *testing.T) {
	cases := []struct {
		url, name, ext string
	}{
		{"https://static2.my-shop.ru/product/3/123/1.jpg", "1.jpg", ".jpg"},
		{"https://studentsbook.net/upload/iblock/a1/cover.PNG?v=2", "cover.PNG", ".jpg"},
		{`https://studentsbook.net\upload\x.jpeg`, "x.jpeg", ".jpeg"},
		{"https://example.com/img", "img", ".jpg"},
	}
	for _, c := range cases {
		assert.Equal(t, c.name, FileName(c.url), c.url)
		assert.Equal(t, c.ext, Extension(c.url), c.url)
	}
}
