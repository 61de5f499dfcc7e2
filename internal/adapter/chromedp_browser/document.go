package chromedp_browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentMeta holds document facts the accessibility tree does not carry.
type DocumentMeta struct {
	Lang  string
	Title string
}

// ParseDocumentMeta reads the root language and <title> from serialized HTML.
func ParseDocumentMeta(html string) (DocumentMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DocumentMeta{}, fmt.Errorf("parse html: %w", err)
	}

	root := doc.Find("html").First()
	lang := strings.TrimSpace(root.AttrOr("lang", ""))
	if lang == "" {
		lang = strings.TrimSpace(root.AttrOr("xml:lang", ""))
	}
	title := strings.Join(strings.Fields(doc.Find("head title").First().Text()), " ")
	if title == "" {
		title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	}
	return DocumentMeta{Lang: lang, Title: title}, nil
}
