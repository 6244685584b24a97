package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CHURCHMATE"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "church.db"
	defaultMarkerPath   = "church.db.launched"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultCookieName   = "app_session"
	defaultIssuer       = "churchmate-auth"
	defaultBatchSize    = 2000
	// Each verse row binds 7 parameters; SQLite accepts 32766 per statement.
	maxBatchSize        = 4000
)

// SourceConfig names one translation and the markup file that seeds it.
type SourceConfig struct {
	Translation string `mapstructure:"translation"`
	Path        string `mapstructure:"path"`
	IDBase      int    `mapstructure:"id_base"`
}

// AppConfig captures runtime configuration for the service and CLI.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabasePath      string
	MarkerPath        string
	LogLevel          string
	LogFormat         string
	AuthSigningSecret string
	AuthIssuer        string
	AuthCookieName    string
	SeedBatchSize     int
	Sources           []SourceConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("bootstrap.marker_path", defaultMarkerPath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("seed.batch_size", defaultBatchSize)
	configViper.SetDefault("bible.sources", []map[string]any{
		{"translation": "myanmar", "path": "assets/bibles/myanmar.xml", "id_base": 1000},
		{"translation": "hakha", "path": "assets/bibles/hakha.xml", "id_base": 2000},
	})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	var sources []SourceConfig
	if err := configViper.UnmarshalKey("bible.sources", &sources); err != nil {
		return AppConfig{}, fmt.Errorf("bible.sources: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    allowedOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:      configViper.GetString("database.path"),
		MarkerPath:        configViper.GetString("bootstrap.marker_path"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		AuthCookieName:    configViper.GetString("auth.cookie_name"),
		SeedBatchSize:     configViper.GetInt("seed.batch_size"),
		Sources:           sources,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// allowedOrigins drops blanks; env values may list origins separated by spaces or commas.
func allowedOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == ' ' }) {
			origins = append(origins, strings.TrimRight(origin, "/"))
		}
	}
	return origins
}

// RequireAuth reports an error when the settings needed to validate sessions are missing.
func (c AppConfig) RequireAuth() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	return nil
}

// IDBases returns the book id offsets keyed by translation.
func (c AppConfig) IDBases() map[string]int {
	bases := make(map[string]int, len(c.Sources))
	for _, source := range c.Sources {
		bases[source.Translation] = source.IDBase
	}
	return bases
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.MarkerPath) == "" {
		return fmt.Errorf("bootstrap.marker_path is required")
	}
	if c.SeedBatchSize <= 0 || c.SeedBatchSize > maxBatchSize {
		return fmt.Errorf("seed.batch_size must be between 1 and %d, got %d", maxBatchSize, c.SeedBatchSize)
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("http.allowed_origins must list explicit origins; leave it empty to allow any origin without credentials")
		}
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for index, source := range c.Sources {
		translation := strings.TrimSpace(source.Translation)
		if translation == "" {
			return fmt.Errorf("bible.sources[%d].translation is required", index)
		}
		if _, duplicate := seen[translation]; duplicate {
			return fmt.Errorf("bible.sources[%d]: duplicate translation %q", index, translation)
		}
		seen[translation] = struct{}{}
		if strings.TrimSpace(source.Path) == "" {
			return fmt.Errorf("bible.sources[%d].path is required", index)
		}
		if source.IDBase <= 0 {
			return fmt.Errorf("bible.sources[%d].id_base must be positive", index)
		}
	}
	return nil
}
