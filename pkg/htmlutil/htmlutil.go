package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText strips non-printable characters, trims the string and collapses
// runs of whitespace into a single space.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Text returns the cleaned text of the first node of the selection, an
// empty selection yields "".
func Text(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return CleanText(GetText(sel.Nodes[0]))
}

// Src returns the src attribute of the first node of the selection.
func Src(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	src, _ := sel.First().Attr("src")
	return strings.TrimSpace(src)
}

// Parse parses an html document out of a response body.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
