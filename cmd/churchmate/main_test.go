package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleMarkup = `<bible>
<b n="Genesis"><c n="1"><v n="1">A tir ah Pathian nih van le vawlei a ser.</v><v n="2">Vawlei cu a bial.</v></c></b>
<b n="Exodus"><c n="1"><v n="1">Israel fale hna min.</v></c></b>
</bible>`

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCommand()
	var output bytes.Buffer
	rootCmd.SetOut(&output)
	rootCmd.SetErr(&output)
	rootCmd.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	err := rootCmd.Execute()
	return output.String(), err
}

func TestMigrateCommandIsIdempotent(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "church.db")

	first, err := executeCommand(t, "migrate", "--database-path", databasePath)
	if err != nil {
		t.Fatalf("first migrate failed: %v", err)
	}
	if !strings.Contains(first, "schema migrated from 0 to 2") {
		t.Fatalf("unexpected first migrate output: %q", first)
	}

	second, err := executeCommand(t, "migrate", "--database-path", databasePath)
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(second, "schema already at version 2") {
		t.Fatalf("unexpected second migrate output: %q", second)
	}
}

func TestImportCommandSeedsFromFile(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "hakha.xml")
	if err := os.WriteFile(sourcePath, []byte(sampleMarkup), 0o600); err != nil {
		t.Fatalf("failed to write markup: %v", err)
	}

	output, err := executeCommand(t, "import", "hakha", "--file", sourcePath, "--database-path", filepath.Join(dir, "church.db"))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(output, "hakha: 2 books, 3 verses stored") {
		t.Fatalf("unexpected import output: %q", output)
	}
}

func TestInspectCommandReportsCensus(t *testing.T) {
	sourcePath := filepath.Join(t.TempDir(), "hakha.xml")
	if err := os.WriteFile(sourcePath, []byte(sampleMarkup), 0o600); err != nil {
		t.Fatalf("failed to write markup: %v", err)
	}

	output, err := executeCommand(t, "inspect", "hakha", sourcePath)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(output, "markup:  2 books, 2 chapters, 3 verses") {
		t.Fatalf("unexpected census output: %q", output)
	}
	if !strings.Contains(output, "parsed:  2 books, 3 verses, 0 anomalies") {
		t.Fatalf("unexpected parse output: %q", output)
	}
}

func TestTokenCommandRequiresSigningSecret(t *testing.T) {
	t.Setenv("CHURCHMATE_AUTH_SIGNING_SECRET", "")
	if _, err := executeCommand(t, "token", "--user", "user-1"); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
}

func TestTokenCommandPrintsToken(t *testing.T) {
	output, err := executeCommand(t, "token", "--user", "user-1", "--role", "admin", "--signing-secret", "cli-secret")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if strings.Count(strings.TrimSpace(output), ".") != 2 {
		t.Fatalf("expected a compact jwt, got %q", output)
	}
}

func TestLoadEnvFileIgnoresMissingFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadEnvFilePopulatesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CHURCHMATE_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("CHURCHMATE_TEST_VALUE") })

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := os.Getenv("CHURCHMATE_TEST_VALUE"); got != "from-dotenv" {
		t.Fatalf("unexpected env value %q", got)
	}
}
