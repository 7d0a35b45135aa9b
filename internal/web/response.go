package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html/charset"
)

type Response struct {
	Status   int
	Body     []byte
	FinalURL string
	Header   http.Header
}

func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode json from %s: %w", r.FinalURL, err)
	}
	return nil
}

// HTML parses the body as an HTML document, decoding it to UTF-8 according
// to the Content-Type header first.
func (r *Response) HTML() (*goquery.Document, error) {
	var reader io.Reader = bytes.NewReader(r.Body)
	if utf8Reader, err := charset.NewReader(reader, r.Header.Get("Content-Type")); err == nil {
		reader = utf8Reader
	} else {
		reader = bytes.NewReader(r.Body)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", r.FinalURL, err)
	}
	return doc, nil
}

func (r *Response) XML() (*xmlquery.Node, error) {
	return ParseXML(r.Body)
}

func ParseXML(body []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return doc, nil
}
