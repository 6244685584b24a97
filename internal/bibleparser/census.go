package bibleparser

import (
	"fmt"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Census counts the structural elements of a source document.
type Census struct {
	Books    int
	Chapters int
	Verses   int
}

var (
	countBooks    = xpath.MustCompile(`count(//b|//book)`)
	countChapters = xpath.MustCompile(`count(//b/c|//book/chapter)`)
	countVerses   = xpath.MustCompile(`count(//b/c/v|//book/chapter/verse)`)
)

// Survey loads the whole document and counts its book, chapter and verse
// elements independently of Parse. Unlike Parse it fails on malformed markup.
func Survey(r io.Reader) (Census, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return Census{}, fmt.Errorf("bibleparser: survey: %w", err)
	}
	return Census{
		Books:    evaluateCount(root, countBooks),
		Chapters: evaluateCount(root, countChapters),
		Verses:   evaluateCount(root, countVerses),
	}, nil
}

func evaluateCount(root *xmlquery.Node, expr *xpath.Expr) int {
	value, ok := expr.Evaluate(xmlquery.CreateXPathNavigator(root)).(float64)
	if !ok {
		return 0
	}
	return int(value)
}
