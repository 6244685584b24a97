package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/churchmate/internal/auth"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bibleparser"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bootstrap"
	"github.com/MarcoPoloResearchLab/churchmate/internal/database"
	"github.com/MarcoPoloResearchLab/churchmate/internal/scripture"
	"github.com/MarcoPoloResearchLab/churchmate/internal/server"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "churchmate-auth"
	sessionUserID        = "user-abc"
	jsonContentType      = "application/json"
)

const hakhaMarkup = `<?xml version="1.0" encoding="UTF-8"?>
<bible>
  <b n="Genesis">
    <c n="1">
      <v n="1">A tir ah Pathian nih van le vawlei a ser.</v>
      <v n="2">Vawlei cu a bial &amp; a lawng.</v>
    </c>
    <c n="2"><v n="1">Van le vawlei an dih.</v></c>
  </b>
  <b n="Exodus"><c n="1"><v n="1">Israel fale hna min.</v></c></b>
</bible>`

type bootedStack struct {
	server  *httptest.Server
	service *scripture.Service
	report  bootstrap.Report
}

// bootStack runs the first-launch import against files on disk. The myanmar
// source is intentionally absent so it falls back to placeholder data.
func bootStack(testContext *testing.T) bootedStack {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	dir := testContext.TempDir()
	hakhaPath := filepath.Join(dir, "hakha.xml")
	if err := os.WriteFile(hakhaPath, []byte(hakhaMarkup), 0o600); err != nil {
		testContext.Fatalf("failed to write markup: %v", err)
	}

	db, err := database.OpenSQLite(filepath.Join(dir, "church.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	service, err := scripture.NewService(scripture.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build scripture service: %v", err)
	}
	marker, err := bootstrap.NewFileLaunchMarker(filepath.Join(dir, "church.db.launched"), time.Now)
	if err != nil {
		testContext.Fatalf("failed to build marker: %v", err)
	}
	runner, err := bootstrap.New(bootstrap.Config{
		Repository: service,
		Parser:     bibleparser.New(bibleparser.Config{}),
		Loader:     bootstrap.FileLoader{},
		Marker:     marker,
		Sources: []bootstrap.Source{
			{Translation: "myanmar", Path: filepath.Join(dir, "missing.xml"), IDBase: 1000},
			{Translation: "hakha", Path: hakhaPath, IDBase: 2000},
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build runner: %v", err)
	}
	report, err := runner.Run(context.Background())
	if err != nil {
		testContext.Fatalf("first launch failed: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Scripture: service,
		Sessions:  validator,
		Importer:  runner,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)
	return bootedStack{server: testServer, service: service, report: report}
}

func TestFirstLaunchSeedsAndServesScripture(testContext *testing.T) {
	stack := bootStack(testContext)

	if !stack.report.FirstLaunch || len(stack.report.Translations) != 2 {
		testContext.Fatalf("unexpected first launch report: %+v", stack.report)
	}
	for _, translation := range stack.report.Translations {
		wantPlaceholder := translation.Translation == "myanmar"
		if translation.Placeholder != wantPlaceholder {
			testContext.Fatalf("unexpected placeholder flag for %s: %+v", translation.Translation, translation)
		}
	}

	var translations struct {
		Translations []string `json:"translations"`
	}
	getJSON(testContext, stack.server.URL+"/translations", &translations)
	if len(translations.Translations) != 2 || translations.Translations[0] != "hakha" || translations.Translations[1] != "myanmar" {
		testContext.Fatalf("unexpected translations: %v", translations.Translations)
	}

	var books struct {
		Books []scripture.Book `json:"books"`
	}
	getJSON(testContext, stack.server.URL+"/translations/hakha/books", &books)
	if len(books.Books) != 2 || books.Books[0].ID != 2000 || books.Books[0].Chapters != 2 || books.Books[1].Name != "Exodus" {
		testContext.Fatalf("unexpected hakha books: %+v", books.Books)
	}

	var placeholderBooks struct {
		Books []scripture.Book `json:"books"`
	}
	getJSON(testContext, stack.server.URL+"/translations/myanmar/books", &placeholderBooks)
	if len(placeholderBooks.Books) != 2 || placeholderBooks.Books[0].Chapters != 50 || placeholderBooks.Books[1].Chapters != 40 {
		testContext.Fatalf("unexpected placeholder books: %+v", placeholderBooks.Books)
	}

	var chapter struct {
		Verses []scripture.Verse `json:"verses"`
	}
	getJSON(testContext, stack.server.URL+"/translations/hakha/books/2000/chapters/1", &chapter)
	if len(chapter.Verses) != 2 || chapter.Verses[1].Text != "Vawlei cu a bial & a lawng." {
		testContext.Fatalf("unexpected chapter verses: %+v", chapter.Verses)
	}

	var search struct {
		Verses []scripture.Verse `json:"verses"`
	}
	getJSON(testContext, stack.server.URL+"/translations/hakha/search?q=vawlei", &search)
	if len(search.Verses) != 3 {
		testContext.Fatalf("expected three case-insensitive matches, got %+v", search.Verses)
	}
}

func TestBookmarkFlowWithSessionCookie(testContext *testing.T) {
	stack := bootStack(testContext)
	sessionCookie := &http.Cookie{
		Name:  sessionCookieName,
		Value: mustMintSessionToken(testContext, sessionSigningSecret, sessionUserID, time.Now()),
	}

	var chapter struct {
		Verses []scripture.Verse `json:"verses"`
	}
	getJSON(testContext, stack.server.URL+"/translations/hakha/books/2000/chapters/1", &chapter)
	if len(chapter.Verses) == 0 {
		testContext.Fatalf("expected seeded verses")
	}
	verseID := chapter.Verses[0].ID

	toggleBody, _ := json.Marshal(map[string]any{"verseId": verseID, "note": "opening"})
	toggleReq, _ := http.NewRequest(http.MethodPost, stack.server.URL+"/bookmarks/toggle", bytes.NewReader(toggleBody))
	toggleReq.AddCookie(sessionCookie)
	toggleReq.Header.Set("Content-Type", jsonContentType)
	toggleResp, err := http.DefaultClient.Do(toggleReq)
	if err != nil {
		testContext.Fatalf("toggle request failed: %v", err)
	}
	defer toggleResp.Body.Close()
	if toggleResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected toggle status: %d", toggleResp.StatusCode)
	}
	var toggleResult struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := json.NewDecoder(toggleResp.Body).Decode(&toggleResult); err != nil {
		testContext.Fatalf("failed to decode toggle response: %v", err)
	}
	if !toggleResult.Bookmarked {
		testContext.Fatalf("expected first toggle to bookmark the verse")
	}

	listReq, _ := http.NewRequest(http.MethodGet, stack.server.URL+"/bookmarks", nil)
	listReq.AddCookie(sessionCookie)
	listResp, err := http.DefaultClient.Do(listReq)
	if err != nil {
		testContext.Fatalf("list request failed: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected list status: %d", listResp.StatusCode)
	}
	var listPayload struct {
		Bookmarks []scripture.Bookmark `json:"bookmarks"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listPayload); err != nil {
		testContext.Fatalf("failed to decode bookmarks: %v", err)
	}
	if len(listPayload.Bookmarks) != 1 {
		testContext.Fatalf("expected one bookmark, got %d", len(listPayload.Bookmarks))
	}
	bookmark := listPayload.Bookmarks[0]
	if bookmark.VerseID != verseID || bookmark.Note != "opening" || bookmark.Verse.Text != chapter.Verses[0].Text {
		testContext.Fatalf("unexpected bookmark: %+v", bookmark)
	}

	deleteReq, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/bookmarks/%d", stack.server.URL, bookmark.ID), nil)
	deleteReq.AddCookie(sessionCookie)
	deleteResp, err := http.DefaultClient.Do(deleteReq)
	if err != nil {
		testContext.Fatalf("delete request failed: %v", err)
	}
	deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusNoContent {
		testContext.Fatalf("unexpected delete status: %d", deleteResp.StatusCode)
	}

	bookmarked, err := stack.service.IsBookmarked(context.Background(), sessionUserID, verseID)
	if err != nil {
		testContext.Fatalf("is bookmarked failed: %v", err)
	}
	if bookmarked {
		testContext.Fatalf("expected bookmark to be removed")
	}
}

func getJSON(testContext *testing.T, url string, target any) {
	testContext.Helper()
	resp, err := http.Get(url)
	if err != nil {
		testContext.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		testContext.Fatalf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		testContext.Fatalf("GET %s: failed to decode: %v", url, err)
	}
}

func mustMintSessionToken(testContext *testing.T, signingSecret, userID string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
