package scripture

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// verseConflictColumns is the natural key of a verse row.
var verseConflictColumns = []clause.Column{
	{Name: "language"},
	{Name: "book_name"},
	{Name: "chapter"},
	{Name: "verse"},
}

// Seed writes a translation's books and verses. Books are replaced by id. Verses
// are upserted on their natural key in batches, one transaction per batch, and an
// existing verse keeps its id so bookmarks stay attached across re-seeds. Rows of
// an earlier seed that the new book set no longer names are removed first.
func (s *Service) Seed(ctx context.Context, translation string, books []Book, verses []Verse) error {
	if err := s.ensureReady(opSeed); err != nil {
		return err
	}
	if err := requireTranslation(opSeed, translation); err != nil {
		return err
	}
	if len(books) == 0 {
		return newServiceError(opSeed, "missing_books", invalidInput("at least one book is required"))
	}

	bookRows := make([]Book, len(books))
	for index, book := range books {
		book.Translation = translation
		bookRows[index] = book
	}

	db := s.db.WithContext(ctx)
	var pruned staleRows
	if err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		if pruned, err = pruneStaleRows(tx, translation, bookRows); err != nil {
			return err
		}
		return tx.Clauses(clause.Insert{Modifier: "OR REPLACE"}).Create(&bookRows).Error
	}); err != nil {
		s.logError(opSeed, "books_write_failed", err, zap.String("translation", translation))
		return newServiceError(opSeed, "books_write_failed", storageError(err))
	}

	if pruned.any() {
		s.loggerOrDefault().Info("stale rows removed before re-seed",
			zap.String("translation", translation),
			zap.Int64("books", pruned.books),
			zap.Int64("verses", pruned.verses),
			zap.Int64("bookmarks", pruned.bookmarks))
	}

	written := 0
	for start := 0; start < len(verses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(verses) {
			end = len(verses)
		}
		batch := make([]Verse, 0, end-start)
		for _, verse := range verses[start:end] {
			verse.ID = 0
			verse.Translation = translation
			batch = append(batch, verse)
		}

		if err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   verseConflictColumns,
				DoUpdates: clause.AssignmentColumns([]string{"book_id", "text"}),
			}).Create(&batch).Error
		}); err != nil {
			s.logError(opSeed, "verses_write_failed", err,
				zap.String("translation", translation),
				zap.Int("batch_start", start),
				zap.Int("written", written))
			return newServiceError(opSeed, "verses_write_failed", storageError(err))
		}
		written += len(batch)
		s.loggerOrDefault().Debug("verse batch written",
			zap.String("translation", translation),
			zap.Int("written", written),
			zap.Int("total", len(verses)))
	}

	s.loggerOrDefault().Info("translation seeded",
		zap.String("translation", translation),
		zap.Int("books", len(bookRows)),
		zap.Int("verses", written))
	return nil
}

type staleRows struct {
	books     int64
	verses    int64
	bookmarks int64
}

func (r staleRows) any() bool {
	return r.books > 0 || r.verses > 0 || r.bookmarks > 0
}

// pruneStaleRows drops books whose id is absent from the new set and verses
// filed under a book name the new set does not carry, such as placeholder rows
// replaced by a real import. Bookmarks on dropped verses are removed with them.
func pruneStaleRows(tx *gorm.DB, translation string, books []Book) (staleRows, error) {
	ids := make([]int, 0, len(books))
	names := make([]string, 0, len(books))
	for _, book := range books {
		ids = append(ids, book.ID)
		names = append(names, book.Name)
	}

	var pruned staleRows
	result := tx.Exec(`DELETE FROM bookmarks WHERE verse_id IN
		(SELECT id FROM verses WHERE language = ? AND book_name NOT IN ?)`, translation, names)
	if result.Error != nil {
		return pruned, result.Error
	}
	pruned.bookmarks = result.RowsAffected

	result = tx.Exec(`DELETE FROM verses WHERE language = ? AND book_name NOT IN ?`, translation, names)
	if result.Error != nil {
		return pruned, result.Error
	}
	pruned.verses = result.RowsAffected

	result = tx.Exec(`DELETE FROM books WHERE language = ? AND id NOT IN ?`, translation, ids)
	if result.Error != nil {
		return pruned, result.Error
	}
	pruned.books = result.RowsAffected
	return pruned, nil
}
