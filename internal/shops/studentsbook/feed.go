package studentsbook

import (
	"bytes"
	"strings"

	"book_spider/internal/web"

	"github.com/antchfx/xmlquery"
)

type category struct {
	name   string
	parent string
}

type offer struct {
	ID          string
	URL         string
	Price       string
	Currency    string
	CategoryID  string
	Picture     string
	Author      string
	Name        string
	Publisher   string
	Series      string
	Year        string
	ISBN        string
	Format      string
	Pages       string
	Language    string
	Description string
}

// feed is the parsed export plus the indices built from it.
type feed struct {
	offers     []*offer
	categories map[string]category
}

var declarations = []string{`encoding="windows-1251"`, `encoding='windows-1251'`, `encoding="WINDOWS-1251"`}

// fixEncoding rewrites the declared encoding; the export claims windows-1251
// but is served as UTF-8.
func fixEncoding(raw []byte) []byte {
	for _, d := range declarations {
		raw = bytes.Replace(raw, []byte(d), []byte(`encoding="utf-8"`), 1)
	}
	return raw
}

func parseFeed(raw []byte) (*feed, error) {
	doc, err := web.ParseXML(fixEncoding(raw))
	if err != nil {
		return nil, err
	}

	f := &feed{categories: map[string]category{}}
	for _, n := range xmlquery.Find(doc, "//category") {
		id := strings.TrimSpace(n.SelectAttr("id"))
		if id == "" {
			continue
		}
		f.categories[id] = category{
			name:   strings.TrimSpace(n.InnerText()),
			parent: strings.TrimSpace(n.SelectAttr("parentId")),
		}
	}

	for _, n := range xmlquery.Find(doc, "//offer") {
		f.offers = append(f.offers, &offer{
			ID:          strings.TrimSpace(n.SelectAttr("id")),
			URL:         childText(n, "url"),
			Price:       childText(n, "price"),
			Currency:    childText(n, "currencyId"),
			CategoryID:  childText(n, "categoryId"),
			Picture:     childText(n, "picture"),
			Author:      childText(n, "author"),
			Name:        childText(n, "name"),
			Publisher:   childText(n, "publisher"),
			Series:      childText(n, "series"),
			Year:        childText(n, "year"),
			ISBN:        childText(n, "ISBN"),
			Format:      firstText(n, "format", "binding"),
			Pages:       childText(n, "page_extent"),
			Language:    childText(n, "language"),
			Description: childText(n, "description"),
		})
	}
	return f, nil
}

func childText(n *xmlquery.Node, name string) string {
	if c := n.SelectElement(name); c != nil {
		return strings.TrimSpace(c.InnerText())
	}
	return ""
}

func firstText(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		if v := childText(n, name); v != "" {
			return v
		}
	}
	return ""
}

// categoryPath joins the names from the root down to id with "-".
func (f *feed) categoryPath(id string) string {
	var names []string
	seen := map[string]bool{}
	for id != "" && !seen[id] {
		seen[id] = true
		c, ok := f.categories[id]
		if !ok {
			break
		}
		names = append(names, c.name)
		id = c.parent
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "-")
}

func (f *feed) byPublisher(name string) []*offer {
	var out []*offer
	for _, o := range f.offers {
		if o.Publisher != "" && strings.EqualFold(o.Publisher, name) {
			out = append(out, o)
		}
	}
	return out
}
