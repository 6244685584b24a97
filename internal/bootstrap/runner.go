// Package bootstrap runs the startup sequence: migrate, import on first launch,
// then record that the launch completed.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/churchmate/internal/bibleparser"
	"github.com/MarcoPoloResearchLab/churchmate/internal/scripture"
)

var (
	// ErrInitialization means the store could not be migrated; the process should stop and be restarted.
	ErrInitialization = errors.New("bootstrap: initialization failed")
	// ErrUnknownSource indicates Import was asked for a translation with no configured source.
	ErrUnknownSource = errors.New("bootstrap: unknown translation source")

	errMissingRepository = errors.New("bootstrap: repository is required")
	errMissingParser     = errors.New("bootstrap: parser is required")
	errMissingMarker     = errors.New("bootstrap: launch marker is required")
)

const (
	placeholderVerseText = "In the beginning God created the heaven and the earth."
)

// Source names one translation file and the base its book ids start from.
type Source struct {
	Translation string
	Path        string
	IDBase      int
}

// SourceLoader opens the raw markup of a source.
type SourceLoader interface {
	Open(ctx context.Context, source Source) (io.ReadCloser, error)
}

// FileLoader reads sources from the local filesystem.
type FileLoader struct{}

// Open opens source.Path.
func (FileLoader) Open(_ context.Context, source Source) (io.ReadCloser, error) {
	file, err := os.Open(source.Path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open %s source: %w", source.Translation, err)
	}
	return file, nil
}

// Repository is the slice of the scripture service the bootstrap drives.
type Repository interface {
	Init(ctx context.Context) error
	IsSeeded(ctx context.Context, translation string) (bool, error)
	Seed(ctx context.Context, translation string, books []scripture.Book, verses []scripture.Verse) error
}

// Config wires a Runner. Loader defaults to FileLoader.
type Config struct {
	Repository Repository
	Parser     *bibleparser.Parser
	Loader     SourceLoader
	Marker     LaunchMarker
	Sources    []Source
	Logger     *zap.Logger
}

// Runner owns the startup sequence.
type Runner struct {
	repository Repository
	parser     *bibleparser.Parser
	loader     SourceLoader
	marker     LaunchMarker
	sources    []Source
	logger     *zap.Logger
}

// TranslationReport describes what happened to one translation.
type TranslationReport struct {
	Translation string
	Books       int
	Verses      int
	Anomalies   int
	Placeholder bool
	Cause       error
}

// Report summarizes a Run.
type Report struct {
	FirstLaunch  bool
	Translations []TranslationReport
}

// New validates the configuration.
func New(cfg Config) (*Runner, error) {
	if cfg.Repository == nil {
		return nil, errMissingRepository
	}
	if cfg.Parser == nil {
		return nil, errMissingParser
	}
	if cfg.Marker == nil {
		return nil, errMissingMarker
	}
	loader := cfg.Loader
	if loader == nil {
		loader = FileLoader{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := make([]Source, len(cfg.Sources))
	copy(sources, cfg.Sources)
	return &Runner{
		repository: cfg.Repository,
		parser:     cfg.Parser,
		loader:     loader,
		marker:     cfg.Marker,
		sources:    sources,
		logger:     logger,
	}, nil
}

// Run initializes the repository and, on first launch, imports every source
// that is not seeded yet. A source that cannot be opened or parsed is replaced
// by placeholder data; a source whose reader fails midway aborts the run. The
// launch marker is written only after all seeds succeed, so an interrupted
// import is retried on the next start.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if err := r.repository.Init(ctx); err != nil {
		r.logger.Error("repository initialization failed", zap.Error(err))
		return Report{}, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	firstLaunch, err := r.marker.IsFirstLaunch()
	if err != nil {
		return Report{}, err
	}
	report := Report{FirstLaunch: firstLaunch}
	if !firstLaunch {
		r.logger.Info("launch marker present, skipping import")
		return report, nil
	}

	pending := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		seeded, err := r.repository.IsSeeded(ctx, source.Translation)
		if err != nil {
			return report, err
		}
		if seeded {
			r.logger.Info("translation already seeded", zap.String("translation", source.Translation))
			continue
		}
		pending = append(pending, source)
	}

	parsed, err := r.parseAll(ctx, pending)
	if err != nil {
		return report, err
	}
	for index, source := range pending {
		translationReport, err := r.seed(ctx, source, parsed[index])
		report.Translations = append(report.Translations, translationReport)
		if err != nil {
			return report, err
		}
	}

	if err := r.marker.MarkComplete(); err != nil {
		return report, err
	}
	r.logger.Info("first launch import completed", zap.Int("translations", len(pending)))
	return report, nil
}

// Import parses one translation from reader and re-seeds it. Unlike Run it
// never falls back to placeholder data.
func (r *Runner) Import(ctx context.Context, translation string, reader io.Reader) (TranslationReport, error) {
	source, ok := r.source(translation)
	if !ok {
		return TranslationReport{}, fmt.Errorf("%w: %q", ErrUnknownSource, translation)
	}
	translation = source.Translation
	result, err := r.parser.Parse(reader, translation)
	if err != nil {
		return TranslationReport{Translation: translation, Anomalies: len(result.Anomalies), Cause: err}, err
	}
	books, verses := convert(translation, result)
	if err := r.repository.Seed(ctx, translation, books, verses); err != nil {
		return TranslationReport{Translation: translation, Cause: err}, err
	}
	r.logger.Info("translation imported",
		zap.String("translation", translation),
		zap.Int("books", len(books)),
		zap.Int("verses", len(verses)),
		zap.Int("anomalies", len(result.Anomalies)))
	return TranslationReport{
		Translation: translation,
		Books:       len(books),
		Verses:      len(verses),
		Anomalies:   len(result.Anomalies),
	}, nil
}

// ImportFile imports one configured translation from its source.
func (r *Runner) ImportFile(ctx context.Context, translation string) (TranslationReport, error) {
	source, ok := r.source(translation)
	if !ok {
		return TranslationReport{}, fmt.Errorf("%w: %q", ErrUnknownSource, translation)
	}
	reader, err := r.loader.Open(ctx, source)
	if err != nil {
		return TranslationReport{Translation: translation, Cause: err}, err
	}
	defer reader.Close()
	return r.Import(ctx, translation, reader)
}

type parseOutcome struct {
	result bibleparser.Result
	err    error
}

// parseAll loads and parses every source concurrently. Per-source failures are
// kept in the outcome; only cancellation fails the whole call.
func (r *Runner) parseAll(ctx context.Context, sources []Source) ([]parseOutcome, error) {
	outcomes := make([]parseOutcome, len(sources))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, source := range sources {
		index, source := index, source
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			outcomes[index] = r.parseSource(groupCtx, source)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Runner) parseSource(ctx context.Context, source Source) parseOutcome {
	reader, err := r.loader.Open(ctx, source)
	if err != nil {
		return parseOutcome{err: err}
	}
	defer reader.Close()
	result, err := r.parser.Parse(reader, source.Translation)
	return parseOutcome{result: result, err: err}
}

func (r *Runner) seed(ctx context.Context, source Source, outcome parseOutcome) (TranslationReport, error) {
	report := TranslationReport{
		Translation: source.Translation,
		Anomalies:   len(outcome.result.Anomalies),
	}

	if errors.Is(outcome.err, bibleparser.ErrSourceRead) {
		r.logger.Error("translation source could not be read, import will be retried",
			zap.String("translation", source.Translation),
			zap.String("path", source.Path),
			zap.Error(outcome.err))
		report.Cause = outcome.err
		return report, outcome.err
	}

	var books []scripture.Book
	var verses []scripture.Verse
	if outcome.err != nil {
		r.logger.Warn("translation import failed, seeding placeholder data",
			zap.String("translation", source.Translation),
			zap.String("path", source.Path),
			zap.Error(outcome.err))
		books, verses = placeholder(source)
		report.Placeholder = true
		report.Cause = outcome.err
	} else {
		books, verses = convert(source.Translation, outcome.result)
	}

	if err := r.repository.Seed(ctx, source.Translation, books, verses); err != nil {
		report.Cause = err
		return report, err
	}
	report.Books = len(books)
	report.Verses = len(verses)
	return report, nil
}

func (r *Runner) source(translation string) (Source, bool) {
	for _, source := range r.sources {
		if strings.EqualFold(source.Translation, translation) {
			return source, true
		}
	}
	return Source{}, false
}

func convert(translation string, result bibleparser.Result) ([]scripture.Book, []scripture.Verse) {
	books := make([]scripture.Book, 0, len(result.Books))
	for _, book := range result.Books {
		books = append(books, scripture.Book{
			ID:          book.ID,
			Translation: translation,
			Name:        book.Name,
			Chapters:    book.Chapters,
		})
	}
	verses := make([]scripture.Verse, 0, len(result.Verses))
	for _, verse := range result.Verses {
		verses = append(verses, scripture.Verse{
			Translation: translation,
			BookID:      verse.BookID,
			BookName:    verse.BookName,
			Chapter:     verse.Chapter,
			Number:      verse.Number,
			Text:        verse.Text,
		})
	}
	return books, verses
}

// placeholder keeps a translation browsable when its source could not be imported.
func placeholder(source Source) ([]scripture.Book, []scripture.Verse) {
	books := []scripture.Book{
		{ID: source.IDBase, Translation: source.Translation, Name: "Genesis", Chapters: 50},
		{ID: source.IDBase + 1, Translation: source.Translation, Name: "Exodus", Chapters: 40},
	}
	verses := []scripture.Verse{
		{Translation: source.Translation, BookID: source.IDBase, BookName: "Genesis", Chapter: 1, Number: 1, Text: placeholderVerseText},
	}
	return books, verses
}
