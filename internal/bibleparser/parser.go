// Package bibleparser turns translation markup into flat book and verse records.
//
// Accepted grammar (element names are matched case-insensitively):
//
//	<b n="Name"><c n="1"><v n="1">text</v>...</c>...</b>...
//	<book name="Name"><chapter number="1"><verse number="1">text</verse>...</chapter>...</book>...
//
// Chapter and verse numbers come from their attribute when present; otherwise
// they are assigned sequentially in document order.
package bibleparser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrEmptyParse indicates that no book element was recognized in the source.
	ErrEmptyParse = errors.New("bibleparser: no books recognized")
	// ErrUnknownTranslation indicates that no book id base is configured for the translation.
	ErrUnknownTranslation = errors.New("bibleparser: unknown translation")
)

// DefaultIDBases keeps book ids of the shipped translations in disjoint ranges.
var DefaultIDBases = map[string]int{
	"myanmar": 1000,
	"hakha":   2000,
}

// Book is one parsed book header.
type Book struct {
	ID       int
	Name     string
	Chapters int
}

// Verse is one parsed verse in document order.
type Verse struct {
	BookID   int
	BookName string
	Chapter  int
	Number   int
	Text     string
}

// Anomaly records a local structural problem the parser stepped over.
type Anomaly struct {
	Offset  int64
	Message string
}

// Result holds the fully materialized output for one translation.
type Result struct {
	Translation string
	Books       []Book
	Verses      []Verse
	Anomalies   []Anomaly
}

// Config configures a Parser.
type Config struct {
	IDBases map[string]int
	Logger  *zap.Logger
}

// Parser converts translation markup into records.
type Parser struct {
	idBases map[string]int
	logger  *zap.Logger
}

// New constructs a Parser; a nil IDBases map falls back to DefaultIDBases.
func New(cfg Config) *Parser {
	bases := cfg.IDBases
	if len(bases) == 0 {
		bases = DefaultIDBases
	}
	copied := make(map[string]int, len(bases))
	for translation, base := range bases {
		copied[translation] = base
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{idBases: copied, logger: logger}
}

// ParseString parses in-memory markup.
func (p *Parser) ParseString(source, translation string) (Result, error) {
	return p.Parse(strings.NewReader(source), translation)
}

// Parse streams markup from r. Malformed markup ends the parse early and the
// records read so far are returned together with the recorded anomaly. Stray
// ampersands and unknown entities are kept as literal text and recorded as
// anomalies without stopping. When no book was recognized at all the error is
// ErrEmptyParse. A failing reader yields ErrSourceRead and no records.
func (p *Parser) Parse(r io.Reader, translation string) (Result, error) {
	base, ok := p.idBases[translation]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTranslation, translation)
	}

	state := newParseState(translation, base)
	source := newSourceReader(r)
	decoder := xml.NewDecoder(source)
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrSourceRead) {
			return p.readFailure(translation, decoder.InputOffset(), err)
		}
		if err != nil {
			state.anomaly(decoder.InputOffset(), err.Error())
			break
		}

		switch element := token.(type) {
		case xml.StartElement:
			switch elementKind(element.Name.Local) {
			case kindBook:
				state.startBook(attributeValue(element, "n", "name"))
			case kindChapter:
				if !state.startChapter(attributeValue(element, "n", "number")) {
					state.anomaly(decoder.InputOffset(), "chapter outside of a book")
				}
			case kindVerse:
				source.startCapture()
				text, readErr := readVerseText(decoder)
				raw := source.stopCapture()
				if errors.Is(readErr, ErrSourceRead) {
					return p.readFailure(translation, decoder.InputOffset(), readErr)
				}
				if readErr != nil {
					state.anomaly(decoder.InputOffset(), readErr.Error())
					return p.finish(state)
				}
				if message, found := textDefect(raw); found {
					state.anomaly(decoder.InputOffset(), message)
				}
				if !state.addVerse(attributeValue(element, "n", "number"), text) {
					state.anomaly(decoder.InputOffset(), "verse outside of a chapter")
				}
			}
		case xml.EndElement:
			switch elementKind(element.Name.Local) {
			case kindBook:
				state.endBook()
			case kindChapter:
				state.endChapter()
			}
		}
	}

	return p.finish(state)
}

func (p *Parser) readFailure(translation string, offset int64, err error) (Result, error) {
	p.logger.Error("bible source read failed",
		zap.String("translation", translation),
		zap.Int64("offset", offset),
		zap.Error(err))
	return Result{Translation: translation}, fmt.Errorf("translation %q: %w", translation, err)
}

func (p *Parser) finish(state *parseState) (Result, error) {
	result := state.result()
	for _, anomaly := range result.Anomalies {
		p.logger.Warn("bible markup anomaly",
			zap.String("translation", result.Translation),
			zap.Int64("offset", anomaly.Offset),
			zap.String("message", anomaly.Message))
	}
	if len(result.Books) == 0 {
		return result, fmt.Errorf("%w: translation %q", ErrEmptyParse, result.Translation)
	}
	p.logger.Info("bible markup parsed",
		zap.String("translation", result.Translation),
		zap.Int("books", len(result.Books)),
		zap.Int("verses", len(result.Verses)))
	return result, nil
}

type elementType int

const (
	kindOther elementType = iota
	kindBook
	kindChapter
	kindVerse
)

func elementKind(local string) elementType {
	switch strings.ToLower(local) {
	case "b", "book":
		return kindBook
	case "c", "chapter":
		return kindChapter
	case "v", "verse":
		return kindVerse
	default:
		return kindOther
	}
}

func attributeValue(element xml.StartElement, names ...string) string {
	for _, name := range names {
		for _, attr := range element.Attr {
			if strings.EqualFold(attr.Name.Local, name) {
				return strings.TrimSpace(attr.Value)
			}
		}
	}
	return ""
}

// readVerseText collects character data up to the verse end tag, skipping nested markup.
func readVerseText(decoder *xml.Decoder) (string, error) {
	var builder strings.Builder
	depth := 0
	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("unterminated verse")
			}
			return "", err
		}
		switch element := token.(type) {
		case xml.CharData:
			builder.Write(element)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return builder.String(), nil
			}
			depth--
		}
	}
}

// parseNumber accepts only positive integers.
func parseNumber(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
