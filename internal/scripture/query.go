package scripture

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// IsSeeded reports whether at least one book exists for the translation.
func (s *Service) IsSeeded(ctx context.Context, translation string) (bool, error) {
	if err := s.ensureReady(opIsSeeded); err != nil {
		return false, err
	}
	if err := requireTranslation(opIsSeeded, translation); err != nil {
		return false, err
	}

	var exists bool
	if err := s.db.WithContext(ctx).
		Raw("SELECT EXISTS(SELECT 1 FROM books WHERE language = ?)", translation).
		Scan(&exists).Error; err != nil {
		s.logError(opIsSeeded, "query_failed", err, zap.String("translation", translation))
		return false, newServiceError(opIsSeeded, "query_failed", storageError(err))
	}
	return exists, nil
}

// ListBooks returns every book of a translation ordered by id.
func (s *Service) ListBooks(ctx context.Context, translation string) ([]Book, error) {
	if err := s.ensureReady(opListBooks); err != nil {
		return nil, err
	}
	if err := requireTranslation(opListBooks, translation); err != nil {
		return nil, err
	}

	books := make([]Book, 0)
	if err := s.db.WithContext(ctx).
		Where("language = ?", translation).
		Order("id ASC").
		Find(&books).Error; err != nil {
		s.logError(opListBooks, "query_failed", err, zap.String("translation", translation))
		return nil, newServiceError(opListBooks, "query_failed", storageError(err))
	}
	return books, nil
}

// ListVerses returns one chapter ordered by verse number.
func (s *Service) ListVerses(ctx context.Context, translation string, bookID, chapter int) ([]Verse, error) {
	if err := s.ensureReady(opListVerses); err != nil {
		return nil, err
	}
	if err := requireTranslation(opListVerses, translation); err != nil {
		return nil, err
	}
	if err := requirePositive(opListVerses, "book_id", int64(bookID)); err != nil {
		return nil, err
	}
	if err := requirePositive(opListVerses, "chapter", int64(chapter)); err != nil {
		return nil, err
	}

	verses := make([]Verse, 0)
	if err := s.db.WithContext(ctx).
		Where("language = ? AND book_id = ? AND chapter = ?", translation, bookID, chapter).
		Order("verse ASC").
		Find(&verses).Error; err != nil {
		s.logError(opListVerses, "query_failed", err,
			zap.String("translation", translation),
			zap.Int("book_id", bookID),
			zap.Int("chapter", chapter))
		return nil, newServiceError(opListVerses, "query_failed", storageError(err))
	}
	return verses, nil
}

// Search finds verses whose text contains query.Text as a literal substring.
// Matching is case-insensitive for ASCII letters only, following SQLite LIKE;
// other scripts match exactly. Wildcard characters in the query match
// themselves. A blank query returns no rows. At most SearchLimit rows are
// returned, ordered by book, chapter and verse.
func (s *Service) Search(ctx context.Context, query SearchQuery) ([]Verse, error) {
	if err := s.ensureReady(opSearch); err != nil {
		return nil, err
	}
	if err := requireTranslation(opSearch, query.Translation); err != nil {
		return nil, err
	}
	if query.BookID < 0 {
		return nil, newServiceError(opSearch, "invalid_book_id", invalidInput("book id must not be negative"))
	}

	verses := make([]Verse, 0)
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return verses, nil
	}

	statement := s.db.WithContext(ctx).
		Where("language = ?", query.Translation).
		Where(`text LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(text)+"%")
	if query.BookID > 0 {
		statement = statement.Where("book_id = ?", query.BookID)
	}
	if err := statement.
		Order("book_id ASC").
		Order("chapter ASC").
		Order("verse ASC").
		Limit(SearchLimit).
		Find(&verses).Error; err != nil {
		s.logError(opSearch, "query_failed", err,
			zap.String("translation", query.Translation),
			zap.Int("book_id", query.BookID))
		return nil, newServiceError(opSearch, "query_failed", storageError(err))
	}
	return verses, nil
}

// ListLanguages returns the distinct translations present in the books table.
func (s *Service) ListLanguages(ctx context.Context) ([]string, error) {
	if err := s.ensureReady(opListLanguages); err != nil {
		return nil, err
	}

	languages := make([]string, 0)
	if err := s.db.WithContext(ctx).
		Model(&Book{}).
		Distinct("language").
		Order("language ASC").
		Pluck("language", &languages).Error; err != nil {
		s.logError(opListLanguages, "query_failed", err)
		return nil, newServiceError(opListLanguages, "query_failed", storageError(err))
	}
	return languages, nil
}

// Stats counts the stored books and verses of a translation.
func (s *Service) Stats(ctx context.Context, translation string) (TranslationStats, error) {
	if err := s.ensureReady(opStats); err != nil {
		return TranslationStats{}, err
	}
	if err := requireTranslation(opStats, translation); err != nil {
		return TranslationStats{}, err
	}

	stats := TranslationStats{Translation: translation}
	db := s.db.WithContext(ctx)
	if err := db.Model(&Book{}).Where("language = ?", translation).Count(&stats.Books).Error; err != nil {
		s.logError(opStats, "books_count_failed", err, zap.String("translation", translation))
		return TranslationStats{}, newServiceError(opStats, "books_count_failed", storageError(err))
	}
	if err := db.Model(&Verse{}).Where("language = ?", translation).Count(&stats.Verses).Error; err != nil {
		s.logError(opStats, "verses_count_failed", err, zap.String("translation", translation))
		return TranslationStats{}, newServiceError(opStats, "verses_count_failed", storageError(err))
	}
	return stats, nil
}
