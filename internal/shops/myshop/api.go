package myshop

import (
	"bytes"
	"encoding/json"
	"strings"
)

// flexString accepts both JSON strings and numbers; the API is not
// consistent about ids and prices.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

type facetValue struct {
	Title string     `json:"title"`
	ID    flexString `json:"id"`
}

type facet struct {
	Title  string       `json:"title"`
	Values []facetValue `json:"values"`
}

type subcategory struct {
	ID flexString `json:"id"`
}

type catalogue struct {
	Filter        []facet       `json:"filter"`
	Subcategories []subcategory `json:"subcategories"`
	Redirect      string        `json:"redirect"`
}

type listing struct {
	Meta struct {
		Total flexString `json:"total"`
	} `json:"meta"`
	Products []struct {
		ProductID flexString `json:"product_id"`
	} `json:"products"`
}

type characteristic struct {
	Name  string     `json:"name"`
	Value flexString `json:"value"`
}

type product struct {
	ProductID       flexString       `json:"product_id"`
	Title           string           `json:"title"`
	ISBN            flexString       `json:"isbn"`
	Cost            flexString       `json:"cost"`
	Description     string           `json:"description"`
	ManufactureDate flexString       `json:"manufacture_date"`
	About           []characteristic `json:"about"`
	Characteristics []characteristic `json:"characteristics"`
	Lang            []struct {
		Value flexString `json:"value"`
	} `json:"lang"`
	Img []string `json:"img"`
}

// lookup joins the values of every entry whose name contains one of keys.
func lookup(list []characteristic, keys ...string) string {
	var values []string
	seen := map[characteristic]bool{}
	for _, c := range list {
		name := strings.ToLower(c.Name)
		for _, k := range keys {
			if strings.Contains(name, k) && !seen[c] {
				seen[c] = true
				values = append(values, c.Value.String())
			}
		}
	}
	return strings.Join(values, ", ")
}

// dropNote removes a trailing parenthetical: "18+ (нет данных)" -> "18+".
func dropNote(s string) string {
	before, _, _ := strings.Cut(s, "(")
	return strings.TrimSpace(before)
}
