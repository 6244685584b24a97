// Package scripture is the only read/write gateway to books, verses and bookmarks.
package scripture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/churchmate/internal/database"
)

const (
	// DefaultBatchSize is the number of verse rows written per transaction while seeding.
	DefaultBatchSize = 2000
	// MaxBatchSize keeps one multi-row verse insert under SQLite's limit of
	// 32766 bound parameters.
	MaxBatchSize = 4000
	// SearchLimit caps the rows returned by Search.
	SearchLimit = 100
)

var (
	// ErrNotInitialized indicates an operation ran before Init completed the schema migration.
	ErrNotInitialized = errors.New("scripture: store not initialized")
	// ErrStorage wraps failures reported by the underlying database.
	ErrStorage = errors.New("scripture: storage failure")
	// ErrInvalidInput indicates a malformed argument such as an empty user id.
	ErrInvalidInput = errors.New("scripture: invalid input")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "scripture.service.new"
	opInit               = "scripture.init"
	opIsSeeded           = "scripture.is_seeded"
	opSeed               = "scripture.seed"
	opListBooks          = "scripture.list_books"
	opListVerses         = "scripture.list_verses"
	opSearch             = "scripture.search"
	opListLanguages      = "scripture.list_languages"
	opStats              = "scripture.stats"
	opAddBookmark        = "scripture.add_bookmark"
	opListBookmarks      = "scripture.list_bookmarks"
	opRemoveBookmark     = "scripture.remove_bookmark"
	opRemoveUserBookmark = "scripture.remove_user_bookmark"
	opIsBookmarked       = "scripture.is_bookmarked"
	opToggleBookmark     = "scripture.toggle_bookmark"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func storageError(cause error) error {
	return fmt.Errorf("%w: %w", ErrStorage, cause)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ServiceConfig wires a Service. SchemaStore is created from Database when nil.
type ServiceConfig struct {
	Database    *gorm.DB
	SchemaStore *database.SchemaStore
	Clock       func() time.Time
	Logger      *zap.Logger
	BatchSize   int
}

// Service implements the repository operations over the shared connection.
type Service struct {
	db          *gorm.DB
	schema      *database.SchemaStore
	clock       func() time.Time
	logger      *zap.Logger
	batchSize   int
	initialized atomic.Bool
}

// NewService validates the configuration. The returned service refuses every
// operation until Init succeeds.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	schema := cfg.SchemaStore
	if schema == nil {
		created, err := database.NewSchemaStore(cfg.Database, logger)
		if err != nil {
			return nil, newServiceError(opServiceNew, "schema_store_failed", err)
		}
		schema = created
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		logger.Warn("seed batch size capped",
			zap.Int("requested", batchSize),
			zap.Int("max", MaxBatchSize))
		batchSize = MaxBatchSize
	}

	return &Service{
		db:        cfg.Database,
		schema:    schema,
		clock:     clock,
		logger:    logger,
		batchSize: batchSize,
	}, nil
}

// Init migrates the schema to the current version and opens the service for use.
// Calling it again re-runs the idempotent migration.
func (s *Service) Init(ctx context.Context) error {
	result, err := s.schema.Migrate(ctx)
	if err != nil {
		s.logError(opInit, "migration_failed", err)
		return newServiceError(opInit, "migration_failed", err)
	}
	s.initialized.Store(true)
	s.loggerOrDefault().Info("scripture store initialized",
		zap.Int("schema_from", result.From),
		zap.Int("schema_to", result.To),
		zap.Strings("applied", result.Applied))
	return nil
}

// Initialized reports whether Init has completed.
func (s *Service) Initialized() bool {
	return s.initialized.Load()
}

func (s *Service) ensureReady(operation string) error {
	if !s.initialized.Load() {
		return newServiceError(operation, "not_initialized", ErrNotInitialized)
	}
	return nil
}

func requireTranslation(operation, translation string) error {
	if strings.TrimSpace(translation) == "" {
		return newServiceError(operation, "missing_translation", invalidInput("translation is required"))
	}
	return nil
}

func requireUserID(operation, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return newServiceError(operation, "missing_user_id", invalidInput("user id is required"))
	}
	return nil
}

func requirePositive(operation, name string, value int64) error {
	if value <= 0 {
		return newServiceError(operation, "invalid_"+name, invalidInput("%s must be positive, got %d", name, value))
	}
	return nil
}

func (s *Service) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("scripture service error", attrs...)
}
