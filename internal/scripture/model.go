package scripture

// Book is one book of a translation.
type Book struct {
	ID          int    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Translation string `gorm:"column:language;not null" json:"translation"`
	Name        string `gorm:"column:name;not null" json:"name"`
	Chapters    int    `gorm:"column:chapters;not null" json:"chapters"`
}

// TableName binds the model to the books table.
func (Book) TableName() string {
	return "books"
}

// Verse is one verse row. BookName is stored on the row so chapter reads never join books.
type Verse struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Translation string `gorm:"column:language;not null" json:"translation"`
	BookID      int    `gorm:"column:book_id;not null" json:"bookId"`
	BookName    string `gorm:"column:book_name;not null" json:"bookName"`
	Chapter     int    `gorm:"column:chapter;not null" json:"chapter"`
	Number      int    `gorm:"column:verse;not null" json:"verse"`
	Text        string `gorm:"column:text;not null" json:"text"`
}

// TableName binds the model to the verses table.
func (Verse) TableName() string {
	return "verses"
}

// Bookmark marks a verse for one user. CreatedAt is epoch milliseconds.
type Bookmark struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string `gorm:"column:user_id;not null" json:"userId"`
	VerseID   int64  `gorm:"column:verse_id;not null" json:"verseId"`
	Note      string `gorm:"column:note" json:"note"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:milli" json:"createdAt"`
	Verse     Verse  `gorm:"-" json:"verse"`
}

// TableName binds the model to the bookmarks table.
func (Bookmark) TableName() string {
	return "bookmarks"
}

// SearchQuery narrows Search. BookID 0 searches the whole translation.
type SearchQuery struct {
	Translation string
	Text        string
	BookID      int
}

// TranslationStats summarizes the stored rows of one translation.
type TranslationStats struct {
	Translation string `json:"translation"`
	Books       int64  `json:"books"`
	Verses      int64  `json:"verses"`
}

// bookmarkRow is the flat shape of a bookmark joined with its verse.
type bookmarkRow struct {
	ID               int64
	UserID           string
	VerseID          int64
	Note             *string
	CreatedAt        int64
	VerseTranslation string
	VerseBookID      int
	VerseBookName    string
	VerseChapter     int
	VerseNumber      int
	VerseText        string
}

func (row bookmarkRow) bookmark() Bookmark {
	note := ""
	if row.Note != nil {
		note = *row.Note
	}
	return Bookmark{
		ID:        row.ID,
		UserID:    row.UserID,
		VerseID:   row.VerseID,
		Note:      note,
		CreatedAt: row.CreatedAt,
		Verse: Verse{
			ID:          row.VerseID,
			Translation: row.VerseTranslation,
			BookID:      row.VerseBookID,
			BookName:    row.VerseBookName,
			Chapter:     row.VerseChapter,
			Number:      row.VerseNumber,
			Text:        row.VerseText,
		},
	}
}
