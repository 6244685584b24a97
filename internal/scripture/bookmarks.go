package scripture

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listBookmarksQuery = `SELECT
	b.id, b.user_id, b.verse_id, b.note, b.created_at,
	v.language AS verse_translation,
	v.book_id AS verse_book_id,
	v.book_name AS verse_book_name,
	v.chapter AS verse_chapter,
	v.verse AS verse_number,
	v.text AS verse_text
FROM bookmarks b
JOIN verses v ON v.id = b.verse_id
WHERE b.user_id = ?
ORDER BY b.created_at DESC, b.id DESC`

const bookmarkExistsQuery = "SELECT EXISTS(SELECT 1 FROM bookmarks WHERE user_id = ? AND verse_id = ?)"

// AddBookmark stores a bookmark stamped with the service clock and returns its id.
func (s *Service) AddBookmark(ctx context.Context, userID string, verseID int64, note string) (int64, error) {
	if err := s.ensureReady(opAddBookmark); err != nil {
		return 0, err
	}
	if err := requireUserID(opAddBookmark, userID); err != nil {
		return 0, err
	}
	if err := requirePositive(opAddBookmark, "verse_id", verseID); err != nil {
		return 0, err
	}

	bookmark := Bookmark{UserID: userID, VerseID: verseID, Note: note, CreatedAt: s.nowMillis()}
	if err := s.db.WithContext(ctx).Create(&bookmark).Error; err != nil {
		s.logError(opAddBookmark, "insert_failed", err,
			zap.String("user_id", userID),
			zap.Int64("verse_id", verseID))
		return 0, newServiceError(opAddBookmark, "insert_failed", storageError(err))
	}
	return bookmark.ID, nil
}

// ListBookmarks returns a user's bookmarks with their verses, newest first.
// Ties on creation time are broken by the higher id.
func (s *Service) ListBookmarks(ctx context.Context, userID string) ([]Bookmark, error) {
	if err := s.ensureReady(opListBookmarks); err != nil {
		return nil, err
	}
	if err := requireUserID(opListBookmarks, userID); err != nil {
		return nil, err
	}

	var rows []bookmarkRow
	if err := s.db.WithContext(ctx).Raw(listBookmarksQuery, userID).Scan(&rows).Error; err != nil {
		s.logError(opListBookmarks, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListBookmarks, "query_failed", storageError(err))
	}

	bookmarks := make([]Bookmark, 0, len(rows))
	for _, row := range rows {
		bookmarks = append(bookmarks, row.bookmark())
	}
	return bookmarks, nil
}

// RemoveBookmark deletes a bookmark by id regardless of owner. Deleting a
// missing id is not an error.
func (s *Service) RemoveBookmark(ctx context.Context, bookmarkID int64) error {
	if err := s.ensureReady(opRemoveBookmark); err != nil {
		return err
	}
	if err := requirePositive(opRemoveBookmark, "bookmark_id", bookmarkID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&Bookmark{}, bookmarkID).Error; err != nil {
		s.logError(opRemoveBookmark, "delete_failed", err, zap.Int64("bookmark_id", bookmarkID))
		return newServiceError(opRemoveBookmark, "delete_failed", storageError(err))
	}
	return nil
}

// RemoveUserBookmark deletes a bookmark only when userID owns it and reports
// whether a row was removed.
func (s *Service) RemoveUserBookmark(ctx context.Context, userID string, bookmarkID int64) (bool, error) {
	if err := s.ensureReady(opRemoveUserBookmark); err != nil {
		return false, err
	}
	if err := requireUserID(opRemoveUserBookmark, userID); err != nil {
		return false, err
	}
	if err := requirePositive(opRemoveUserBookmark, "bookmark_id", bookmarkID); err != nil {
		return false, err
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", bookmarkID, userID).
		Delete(&Bookmark{})
	if result.Error != nil {
		s.logError(opRemoveUserBookmark, "delete_failed", result.Error,
			zap.String("user_id", userID),
			zap.Int64("bookmark_id", bookmarkID))
		return false, newServiceError(opRemoveUserBookmark, "delete_failed", storageError(result.Error))
	}
	return result.RowsAffected > 0, nil
}

// IsBookmarked reports whether the user has any bookmark on the verse.
func (s *Service) IsBookmarked(ctx context.Context, userID string, verseID int64) (bool, error) {
	if err := s.ensureReady(opIsBookmarked); err != nil {
		return false, err
	}
	if err := requireUserID(opIsBookmarked, userID); err != nil {
		return false, err
	}
	if err := requirePositive(opIsBookmarked, "verse_id", verseID); err != nil {
		return false, err
	}

	exists, err := bookmarkExists(s.db.WithContext(ctx), userID, verseID)
	if err != nil {
		s.logError(opIsBookmarked, "query_failed", err,
			zap.String("user_id", userID),
			zap.Int64("verse_id", verseID))
		return false, newServiceError(opIsBookmarked, "query_failed", storageError(err))
	}
	return exists, nil
}

// ToggleBookmark removes the user's bookmark on the verse when one exists and
// returns false; otherwise it adds one and returns true. The check and the write
// share one transaction on the single connection, which serializes toggles made
// through this process. The schema has no unique (user, verse) constraint, so a
// second process writing the same file could still interleave.
func (s *Service) ToggleBookmark(ctx context.Context, userID string, verseID int64, note string) (bool, error) {
	if err := s.ensureReady(opToggleBookmark); err != nil {
		return false, err
	}
	if err := requireUserID(opToggleBookmark, userID); err != nil {
		return false, err
	}
	if err := requirePositive(opToggleBookmark, "verse_id", verseID); err != nil {
		return false, err
	}

	var bookmarked bool
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := bookmarkExists(tx, userID, verseID)
		if err != nil {
			s.logError(opToggleBookmark, "query_failed", err,
				zap.String("user_id", userID),
				zap.Int64("verse_id", verseID))
			return newServiceError(opToggleBookmark, "query_failed", storageError(err))
		}

		if exists {
			if err := tx.Where("user_id = ? AND verse_id = ?", userID, verseID).Delete(&Bookmark{}).Error; err != nil {
				s.logError(opToggleBookmark, "delete_failed", err,
					zap.String("user_id", userID),
					zap.Int64("verse_id", verseID))
				return newServiceError(opToggleBookmark, "delete_failed", storageError(err))
			}
			bookmarked = false
			return nil
		}

		bookmark := Bookmark{UserID: userID, VerseID: verseID, Note: note, CreatedAt: s.nowMillis()}
		if err := tx.Create(&bookmark).Error; err != nil {
			s.logError(opToggleBookmark, "insert_failed", err,
				zap.String("user_id", userID),
				zap.Int64("verse_id", verseID))
			return newServiceError(opToggleBookmark, "insert_failed", storageError(err))
		}
		bookmarked = true
		return nil
	})
	if txErr != nil {
		var serviceErr *ServiceError
		if errors.As(txErr, &serviceErr) {
			return false, txErr
		}
		s.logError(opToggleBookmark, "transaction_failed", txErr, zap.String("user_id", userID))
		return false, newServiceError(opToggleBookmark, "transaction_failed", storageError(txErr))
	}
	return bookmarked, nil
}

func bookmarkExists(db *gorm.DB, userID string, verseID int64) (bool, error) {
	var exists bool
	if err := db.Raw(bookmarkExistsQuery, userID, verseID).Scan(&exists).Error; err != nil {
		return false, err
	}
	return exists, nil
}
