package bibleparser

import (
	"fmt"
	"strings"
)

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

var escapedEntities = strings.NewReplacer(
	"&quot;", `"`,
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

// normalizeText trims the payload and unwraps a CDATA marker that survived as
// literal text because the source escaped it.
func normalizeText(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, cdataOpen) && strings.HasSuffix(text, cdataClose) {
		text = text[len(cdataOpen) : len(text)-len(cdataClose)]
		text = strings.TrimSpace(escapedEntities.Replace(text))
	}
	return text
}

type bookState struct {
	book        Book
	chapters    map[int]struct{}
	lastChapter int
}

type parseState struct {
	translation string
	base        int

	books     []Book
	verses    []Verse
	anomalies []Anomaly

	current      *bookState
	inChapter    bool
	chapter      int
	lastVerse    int
	bookPosition int
}

func newParseState(translation string, base int) *parseState {
	return &parseState{translation: translation, base: base}
}

func (s *parseState) anomaly(offset int64, message string) {
	s.anomalies = append(s.anomalies, Anomaly{Offset: offset, Message: message})
}

func (s *parseState) startBook(name string) {
	// A book opened inside another one closes the previous book first.
	s.endBook()
	s.bookPosition++
	if name == "" {
		name = fmt.Sprintf("Book %d", s.bookPosition)
	}
	s.current = &bookState{
		book: Book{
			ID:   s.base + s.bookPosition - 1,
			Name: name,
		},
		chapters: make(map[int]struct{}),
	}
}

func (s *parseState) endBook() {
	if s.current == nil {
		return
	}
	s.endChapter()
	s.current.book.Chapters = len(s.current.chapters)
	s.books = append(s.books, s.current.book)
	s.current = nil
}

func (s *parseState) startChapter(raw string) bool {
	if s.current == nil {
		return false
	}
	number, ok := parseNumber(raw)
	if !ok {
		number = s.current.lastChapter + 1
	}
	s.current.lastChapter = number
	s.current.chapters[number] = struct{}{}
	s.inChapter = true
	s.chapter = number
	s.lastVerse = 0
	return true
}

func (s *parseState) endChapter() {
	s.inChapter = false
}

func (s *parseState) addVerse(raw, text string) bool {
	if s.current == nil || !s.inChapter {
		return false
	}
	number, ok := parseNumber(raw)
	if !ok {
		number = s.lastVerse + 1
	}
	s.lastVerse = number
	s.verses = append(s.verses, Verse{
		BookID:   s.current.book.ID,
		BookName: s.current.book.Name,
		Chapter:  s.chapter,
		Number:   number,
		Text:     normalizeText(text),
	})
	return true
}

// result closes any element left open by truncated markup.
func (s *parseState) result() Result {
	s.endBook()
	return Result{
		Translation: s.translation,
		Books:       s.books,
		Verses:      s.verses,
		Anomalies:   s.anomalies,
	}
}
