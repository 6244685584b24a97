package database

const createSchemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
)`

// Book and verse tables. The translation partition column is named language.
var scriptureTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY,
		language TEXT NOT NULL DEFAULT 'hakha',
		name TEXT NOT NULL,
		chapters INTEGER NOT NULL,
		UNIQUE(language, name)
	)`,
	`CREATE TABLE IF NOT EXISTS verses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		language TEXT NOT NULL DEFAULT 'hakha',
		book_id INTEGER NOT NULL,
		book_name TEXT NOT NULL,
		chapter INTEGER NOT NULL,
		verse INTEGER NOT NULL,
		text TEXT NOT NULL,
		UNIQUE(language, book_name, chapter, verse)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verses_book_chapter ON verses(language, book_id, chapter)`,
	`CREATE INDEX IF NOT EXISTS idx_verses_search ON verses(language, text)`,
	`CREATE INDEX IF NOT EXISTS idx_books_language ON books(language)`,
}

var bookmarkTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		verse_id INTEGER NOT NULL,
		note TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (verse_id) REFERENCES verses(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookmarks_user ON bookmarks(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookmarks_verse ON bookmarks(verse_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookmarks_user_verse ON bookmarks(user_id, verse_id)`,
}

// dropScriptureTables only ever runs in the v1 bootstrap step.
var dropScriptureTables = []string{
	`DROP TABLE IF EXISTS verses`,
	`DROP TABLE IF EXISTS books`,
}

// bootstrapStatements is the ensure-tables pass for an up-to-date store.
// Every statement here must also be issued by some migration step.
func bootstrapStatements() []string {
	statements := make([]string, 0, len(scriptureTableStatements)+len(bookmarkTableStatements))
	statements = append(statements, scriptureTableStatements...)
	statements = append(statements, bookmarkTableStatements...)
	return statements
}
