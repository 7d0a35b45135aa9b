package models

import (
	"fmt"
	"strconv"
	"strings"
)

type BookRecord struct {
	Shop         string `bson:"shop" json:"shop"`
	ISBN         string `bson:"isbn" json:"isbn"`
	Name         string `bson:"name" json:"name"`
	Language     string `bson:"language" json:"language"`
	Series       string `bson:"series" json:"series"`
	Publisher    string `bson:"publisher" json:"publisher"`
	Authors      string `bson:"authors" json:"authors"`
	Category     string `bson:"category" json:"category"`
	AgeCategory  string `bson:"age_category" json:"age_category"`
	Cover        string `bson:"cover" json:"cover"`
	Country      string `bson:"country" json:"country"`
	Year         string `bson:"year" json:"year"`
	Type         string `bson:"type" json:"type"`
	PageCount    string `bson:"page_count" json:"page_count"`
	Dimensions   string `bson:"dimensions" json:"dimensions"`
	Length       string `bson:"length" json:"length"`
	Width        string `bson:"width" json:"width"`
	Height       string `bson:"height" json:"height"`
	Grade        string `bson:"grade" json:"grade"`
	Weight       string `bson:"weight" json:"weight"`
	Color        string `bson:"color" json:"color"`
	PaperType    string `bson:"paper_type" json:"paper_type"`
	Description  string `bson:"description" json:"description"`
	Price        string `bson:"price" json:"price"`
	Currency     string `bson:"currency,omitempty" json:"currency,omitempty"`
	ExternalID   string `bson:"external_id" json:"external_id"`
	URL          string `bson:"url" json:"url"`
	ImageURL     string `bson:"image_url" json:"image_url"`
	MissingImage bool   `bson:"missing_image" json:"missing_image"`
}

// CoverName is the file stem used for the downloaded cover.
func (b *BookRecord) CoverName() string {
	if isbn := strings.TrimSpace(b.ISBN); isbn != "" {
		return isbn
	}
	return strings.TrimSpace(b.ExternalID)
}

// Key identifies the record inside one shop.
func (b *BookRecord) Key() string {
	if id := strings.TrimSpace(b.ExternalID); id != "" {
		return "id:" + id
	}
	if isbn := strings.TrimSpace(b.ISBN); isbn != "" {
		return "isbn:" + isbn
	}
	return "url:" + b.URL
}

// MarkMissingImage points the record at a placeholder and flags it.
func (b *BookRecord) MarkMissingImage(placeholderURL string) {
	b.ImageURL = placeholderURL
	b.MissingImage = true
}

// SetDimensions splits "LxWxH мм" into its parts; anything unparseable leaves
// the parts blank.
func (b *BookRecord) SetDimensions(raw string) {
	b.Dimensions = strings.TrimSpace(raw)
	b.Length, b.Width, b.Height = "", "", ""
	if b.Dimensions == "" {
		return
	}
	parts := strings.Split(b.Dimensions, "x")
	clean := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, "мм", ""))
	}
	if len(parts) > 0 {
		b.Length = clean(parts[0])
	}
	if len(parts) > 1 {
		b.Width = clean(parts[1])
	}
	if len(parts) > 2 {
		b.Height = clean(parts[2])
	}
}

// FillFrom copies every non-empty field of other that is still empty in b.
func (b *BookRecord) FillFrom(other *BookRecord) {
	if other == nil {
		return
	}
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&b.Shop, other.Shop)
	fill(&b.ISBN, other.ISBN)
	fill(&b.Name, other.Name)
	fill(&b.Language, other.Language)
	fill(&b.Series, other.Series)
	fill(&b.Publisher, other.Publisher)
	fill(&b.Authors, other.Authors)
	fill(&b.Category, other.Category)
	fill(&b.AgeCategory, other.AgeCategory)
	fill(&b.Cover, other.Cover)
	fill(&b.Country, other.Country)
	fill(&b.Year, other.Year)
	fill(&b.Type, other.Type)
	fill(&b.PageCount, other.PageCount)
	fill(&b.Grade, other.Grade)
	fill(&b.Weight, other.Weight)
	fill(&b.Color, other.Color)
	fill(&b.PaperType, other.PaperType)
	fill(&b.Description, other.Description)
	fill(&b.Price, other.Price)
	fill(&b.Currency, other.Currency)
	fill(&b.ExternalID, other.ExternalID)
	fill(&b.URL, other.URL)
	if b.Dimensions == "" && other.Dimensions != "" {
		b.SetDimensions(other.Dimensions)
	}
	if b.ImageURL == "" && other.ImageURL != "" {
		b.ImageURL = other.ImageURL
		b.MissingImage = other.MissingImage
	}
}

type PublisherInfo struct {
	Name  string `bson:"name" json:"name"`
	ID    string `bson:"id,omitempty" json:"id,omitempty"`
	Count int    `bson:"count,omitempty" json:"count,omitempty"`
}

const idSeparator = "\tID="

// Line is the persisted form: "name\tID=id" when the shop needs ids,
// "name [count]" when a count is known, the bare name otherwise.
func (p PublisherInfo) Line() string {
	switch {
	case p.ID != "":
		return p.Name + idSeparator + p.ID
	case p.Count > 0:
		return fmt.Sprintf("%s [%d]", p.Name, p.Count)
	default:
		return p.Name
	}
}

func (p PublisherInfo) String() string {
	if p.Count > 0 {
		return fmt.Sprintf("%s [%d]", p.Name, p.Count)
	}
	return p.Name
}

func ParsePublisherLine(line string) PublisherInfo {
	line = strings.TrimRight(line, "\r\n")
	if name, id, ok := strings.Cut(line, idSeparator); ok {
		return PublisherInfo{Name: strings.TrimSpace(name), ID: strings.TrimSpace(id)}
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasSuffix(trimmed, "]") {
		if i := strings.LastIndex(trimmed, " ["); i > 0 {
			if n, err := strconv.Atoi(trimmed[i+2 : len(trimmed)-1]); err == nil {
				return PublisherInfo{Name: trimmed[:i], Count: n}
			}
		}
	}
	return PublisherInfo{Name: trimmed}
}
