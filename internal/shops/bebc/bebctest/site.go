// Package bebctest serves a small imitation of the bebc.co.uk catalogue for
// tests: a landing page with the publisher list, a paginated search and one
// page per product.
package bebctest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
)

const PageSize = 18

type Site struct {
	*httptest.Server
	// Books is how many products each listed publisher has.
	Books map[string]int
	// Single publishers land straight on a product page when searched.
	Single map[string]bool
	// LandingFailures makes the landing page answer 404 that many times.
	LandingFailures int32
	// EmptyFrom, when set, serves result pages from that number on without
	// product items while the label still reports the full count.
	EmptyFrom int

	landingCalls int32
	searchCalls  int32
	productCalls int32
}

func NewSite() *Site {
	s := &Site{
		Books:  map[string]int{"Oxford University Press": 19, "Pearson": 3, "Nobody": 0},
		Single: map[string]bool{"Solo Books": true},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Site) ProductCalls() int { return int(atomic.LoadInt32(&s.productCalls)) }

func (s *Site) SearchCalls() int { return int(atomic.LoadInt32(&s.searchCalls)) }

func ISBN(n int) string { return fmt.Sprintf("9780000000%03d", n) }

func (s *Site) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	switch {
	case r.URL.Path == "/":
		if atomic.AddInt32(&s.landingCalls, 1) <= s.LandingFailures {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><form>
<select name="publisher"><option value="">All publishers</option>
<option> Oxford University Press </option><option>Pearson</option><option>Solo Books</option></select>
<select name="level"><option>Any</option><option>A1</option></select>
</form></body></html>`)
	case r.URL.Path == "/categories/advancedsearch":
		s.search(w, r)
	case strings.HasPrefix(r.URL.Path, "/product/"):
		n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/product/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&s.productCalls, 1)
		fmt.Fprint(w, Product(n, "Oxford University Press"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Site) search(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.searchCalls, 1)
	publisher := r.URL.Query().Get("publisher")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	if s.Single[publisher] {
		fmt.Fprint(w, Product(500, publisher))
		return
	}
	total := s.Books[publisher]

	var b strings.Builder
	b.WriteString(`<html><body><div class="listing">`)
	from, to := (page-1)*PageSize+1, page*PageSize
	if to > total {
		to = total
	}
	fmt.Fprintf(&b, `<p>Showing %d to %d of %d results</p></div>`, from, to, total)
	if s.EmptyFrom > 0 && page >= s.EmptyFrom {
		to = 0
	}
	for i := from; i <= to; i++ {
		fmt.Fprintf(&b, `<div class="product-item"><a href="/product/%d">Book %d</a></div>`, i, i)
	}
	b.WriteString(`</body></html>`)
	fmt.Fprint(w, b.String())
}

// Product renders the detail page of book n.
func Product(n int, publisher string) string {
	return fmt.Sprintf(`<html><body><div class="product-detail">
<h4>Graded Reader %d</h4>
<img src="/static/logo.png">
<img src="https://images.example/covers/%d.jpg">
<em>by Jane Doe Published by %s</em>
<ul><li>ISBN: %s</li><li>Category: ELT Readers</li></ul>
<p>£12.50 inc VAT</p>
<p>Published 2019 (Paperback)</p>
<p>A story about the sea.</p>
<p>Level A2.</p>
<p>Add to Cart</p>
</div></body></html>`, n, n, publisher, ISBN(n))
}
