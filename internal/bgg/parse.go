package bgg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

var (
	errNoItem           = errors.New("response has no item element")
	errEmptyDescription = errors.New("item has no description")
)

// parseDescription returns the description text of the first <item> in a thing response.
//
// The decoder streams tokens so unrelated sections (stats, links, polls) are never
// materialized. BGG double-escapes some entities ("&amp;#10;"), so the text is
// unescaped once more after XML decoding.
func parseDescription(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	depth := 0
	inItem := false
	itemDepth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if inItem {
					return "", errEmptyDescription
				}
				return "", errNoItem
			}
			return "", fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case !inItem && t.Name.Local == "item":
				inItem = true
				itemDepth = depth
			case inItem && depth == itemDepth+1 && t.Name.Local == "description":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("decode description: %w", err)
				}
				text = strings.TrimSpace(html.UnescapeString(text))
				if text == "" {
					return "", errEmptyDescription
				}
				return text, nil
			}
		case xml.EndElement:
			if inItem && depth == itemDepth {
				return "", errEmptyDescription
			}
			depth--
		}
	}
}
