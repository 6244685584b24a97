package scripture

import (
	"context"
	"errors"
	"testing"
)

func TestAddAndListBookmarksNewestFirst(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())

	firstVerse := mustVerseID(t, service, "hakha", 2000, 1, 1)
	secondVerse := mustVerseID(t, service, "hakha", 2001, 1, 1)

	firstID, err := service.AddBookmark(ctx, "user-1", firstVerse, "")
	if err != nil {
		t.Fatalf("add bookmark failed: %v", err)
	}
	secondID, err := service.AddBookmark(ctx, "user-1", secondVerse, "names")
	if err != nil {
		t.Fatalf("add bookmark failed: %v", err)
	}
	if _, err := service.AddBookmark(ctx, "user-2", firstVerse, ""); err != nil {
		t.Fatalf("add bookmark failed: %v", err)
	}

	bookmarks, err := service.ListBookmarks(ctx, "user-1")
	if err != nil {
		t.Fatalf("list bookmarks failed: %v", err)
	}
	if len(bookmarks) != 2 {
		t.Fatalf("expected 2 bookmarks for user-1, got %d", len(bookmarks))
	}
	newest := bookmarks[0]
	if newest.ID != secondID || newest.Note != "names" {
		t.Fatalf("expected newest bookmark first, got %+v", newest)
	}
	if newest.Verse.ID != secondVerse || newest.Verse.BookName != "Exodus" || newest.Verse.Chapter != 1 || newest.Verse.Number != 1 {
		t.Fatalf("expected joined verse fields, got %+v", newest.Verse)
	}
	if newest.Verse.Translation != "hakha" || newest.Verse.Text == "" {
		t.Fatalf("expected verse translation and text, got %+v", newest.Verse)
	}
	oldest := bookmarks[1]
	if oldest.ID != firstID || oldest.Note != "" {
		t.Fatalf("unexpected oldest bookmark: %+v", oldest)
	}
	if oldest.CreatedAt != 1700000000000 || newest.CreatedAt != 1700000001000 {
		t.Fatalf("expected clock-derived epoch milliseconds, got %d and %d", oldest.CreatedAt, newest.CreatedAt)
	}
}

func TestListBookmarksBreaksTimestampTiesByID(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 1)

	for index := 0; index < 3; index++ {
		if err := db.Exec("INSERT INTO bookmarks (user_id, verse_id, note, created_at) VALUES (?, ?, NULL, ?)", "user-1", verseID, 42).Error; err != nil {
			t.Fatalf("failed to insert bookmark: %v", err)
		}
	}

	bookmarks, err := service.ListBookmarks(ctx, "user-1")
	if err != nil {
		t.Fatalf("list bookmarks failed: %v", err)
	}
	if len(bookmarks) != 3 {
		t.Fatalf("expected 3 bookmarks, got %d", len(bookmarks))
	}
	for index := 1; index < len(bookmarks); index++ {
		if bookmarks[index-1].ID <= bookmarks[index].ID {
			t.Fatalf("expected descending ids on equal timestamps, got %d then %d", bookmarks[index-1].ID, bookmarks[index].ID)
		}
	}
	if bookmarks[0].Note != "" {
		t.Fatalf("expected NULL note to read as empty, got %q", bookmarks[0].Note)
	}
}

func TestToggleBookmarkIsSymmetric(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 2)

	bookmarked, err := service.ToggleBookmark(ctx, "user-1", verseID, "")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !bookmarked {
		t.Fatalf("expected first toggle to bookmark")
	}
	exists, err := service.IsBookmarked(ctx, "user-1", verseID)
	if err != nil || !exists {
		t.Fatalf("expected verse to be bookmarked, got %v, %v", exists, err)
	}

	bookmarked, err = service.ToggleBookmark(ctx, "user-1", verseID, "")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if bookmarked {
		t.Fatalf("expected second toggle to unbookmark")
	}
	exists, err = service.IsBookmarked(ctx, "user-1", verseID)
	if err != nil || exists {
		t.Fatalf("expected verse to be unbookmarked, got %v, %v", exists, err)
	}
}

func TestToggleBookmarkRemovesEveryDuplicate(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 2)

	for index := 0; index < 2; index++ {
		if _, err := service.AddBookmark(ctx, "user-1", verseID, ""); err != nil {
			t.Fatalf("add bookmark failed: %v", err)
		}
	}

	bookmarked, err := service.ToggleBookmark(ctx, "user-1", verseID, "")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if bookmarked {
		t.Fatalf("expected toggle to unbookmark")
	}
	if exists, _ := service.IsBookmarked(ctx, "user-1", verseID); exists {
		t.Fatalf("expected no bookmark to remain")
	}
}

func TestToggleBookmarkIsScopedToUser(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 2)

	if _, err := service.ToggleBookmark(ctx, "user-1", verseID, ""); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	bookmarked, err := service.ToggleBookmark(ctx, "user-2", verseID, "")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !bookmarked {
		t.Fatalf("expected another user's toggle to bookmark independently")
	}
	if exists, _ := service.IsBookmarked(ctx, "user-1", verseID); !exists {
		t.Fatalf("expected user-1 bookmark to remain")
	}
}

func TestRemoveBookmarkIsUnconditional(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 1)

	bookmarkID, err := service.AddBookmark(ctx, "user-1", verseID, "")
	if err != nil {
		t.Fatalf("add bookmark failed: %v", err)
	}
	if err := service.RemoveBookmark(ctx, bookmarkID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := service.RemoveBookmark(ctx, bookmarkID); err != nil {
		t.Fatalf("expected removing a missing bookmark to succeed, got %v", err)
	}
	bookmarks, err := service.ListBookmarks(ctx, "user-1")
	if err != nil {
		t.Fatalf("list bookmarks failed: %v", err)
	}
	if len(bookmarks) != 0 {
		t.Fatalf("expected no bookmarks, got %d", len(bookmarks))
	}
}

func TestRemoveUserBookmarkChecksOwner(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	mustSeed(t, service, "hakha", sampleBooks(), sampleVerses())
	verseID := mustVerseID(t, service, "hakha", 2000, 1, 1)

	bookmarkID, err := service.AddBookmark(ctx, "user-1", verseID, "")
	if err != nil {
		t.Fatalf("add bookmark failed: %v", err)
	}

	removed, err := service.RemoveUserBookmark(ctx, "user-2", bookmarkID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed {
		t.Fatalf("expected another user's delete to be refused")
	}
	removed, err = service.RemoveUserBookmark(ctx, "user-1", bookmarkID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !removed {
		t.Fatalf("expected owner delete to remove the row")
	}
}

func TestBookmarkOperationsRejectInvalidInput(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		call func() error
	}{
		{name: "add without user", call: func() error { _, err := service.AddBookmark(ctx, " ", 1, ""); return err }},
		{name: "add without verse", call: func() error { _, err := service.AddBookmark(ctx, "user-1", 0, ""); return err }},
		{name: "list without user", call: func() error { _, err := service.ListBookmarks(ctx, ""); return err }},
		{name: "remove non-positive id", call: func() error { return service.RemoveBookmark(ctx, -1) }},
		{name: "status without user", call: func() error { _, err := service.IsBookmarked(ctx, "", 1); return err }},
		{name: "toggle without verse", call: func() error { _, err := service.ToggleBookmark(ctx, "user-1", 0, ""); return err }},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if err := testCase.call(); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
