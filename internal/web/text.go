package web

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var (
	spaces    = regexp.MustCompile(`\s+`)
	openTags  = regexp.MustCompile(`<(div|p|br|li|td|tr|h[1-6])[^>]*>`)
	closeTags = regexp.MustCompile(`</(div|p|br|li|td|tr|h[1-6])>`)
)

func NormalizeText(text string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// addSpacesBeforeParsing keeps words of neighbouring blocks apart once the
// markup is flattened to text.
func addSpacesBeforeParsing(html string) string {
	html = openTags.ReplaceAllString(html, " $0")
	return closeTags.ReplaceAllString(html, "$0 ")
}

// PlainText flattens an HTML fragment, dropping scripts and styles.
func PlainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(addSpacesBeforeParsing(fragment)))
	if err != nil {
		return NormalizeText(fragment)
	}
	doc.Find("script, style").Remove()
	return NormalizeText(doc.Text())
}

// MainText pulls the readable body out of a whole page.
func MainText(rawHTML, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return "", err
	}
	if text := PlainText(article.Content); text != "" {
		return text, nil
	}
	return NormalizeText(article.Excerpt), nil
}
