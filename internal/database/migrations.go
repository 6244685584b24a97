package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CurrentVersion is the schema version the running code expects on disk.
const CurrentVersion = 2

var (
	// ErrMigrationFailed marks any statement failure while bringing the schema up to date.
	ErrMigrationFailed = errors.New("database: schema migration failed")

	errMissingDatabase = errors.New("database: handle is required")
)

type schemaVersionRecord struct {
	Version int `gorm:"column:version;primaryKey;autoIncrement:false"`
}

func (schemaVersionRecord) TableName() string {
	return "schema_version"
}

// migrationStep is additive unless it is the v1 bootstrap: later steps must never
// drop a table that holds user-entered data.
type migrationStep struct {
	version    int
	name       string
	statements []string
}

func migrationSteps() []migrationStep {
	initial := make([]string, 0, len(dropScriptureTables)+len(scriptureTableStatements))
	initial = append(initial, dropScriptureTables...)
	initial = append(initial, scriptureTableStatements...)

	return []migrationStep{
		{version: 1, name: "create_scripture_tables", statements: initial},
		{version: 2, name: "create_bookmarks", statements: bookmarkTableStatements},
	}
}

// MigrationResult describes what a Migrate call did.
type MigrationResult struct {
	From    int
	To      int
	Applied []string
}

// SchemaStore owns the on-disk layout and its version row.
type SchemaStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSchemaStore binds a schema store to the shared connection.
func NewSchemaStore(db *gorm.DB, logger *zap.Logger) (*SchemaStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaStore{db: db, logger: logger}, nil
}

// Version returns the on-disk schema version, 0 when nothing has been recorded yet.
func (s *SchemaStore) Version(ctx context.Context) (int, error) {
	db := s.db.WithContext(ctx)
	if err := db.Exec(createSchemaVersionTable).Error; err != nil {
		return 0, err
	}
	var records []schemaVersionRecord
	if err := db.Limit(1).Find(&records).Error; err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[0].Version, nil
}

// Migrate brings the schema to CurrentVersion. A store already at the current
// version gets the existence-guarded ensure-tables pass instead.
func (s *SchemaStore) Migrate(ctx context.Context) (MigrationResult, error) {
	return s.migrateTo(ctx, CurrentVersion)
}

func (s *SchemaStore) migrateTo(ctx context.Context, target int) (MigrationResult, error) {
	from, err := s.Version(ctx)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("%w: read version: %v", ErrMigrationFailed, err)
	}
	result := MigrationResult{From: from, To: target}

	if from >= target {
		if from > target {
			s.logger.Warn("on-disk schema is newer than expected",
				zap.Int("on_disk_version", from),
				zap.Int("expected_version", target))
			result.To = from
		}
		if err := s.ensureTables(ctx); err != nil {
			return MigrationResult{}, fmt.Errorf("%w: ensure tables: %v", ErrMigrationFailed, err)
		}
		return result, nil
	}

	s.logger.Info("migrating schema", zap.Int("from", from), zap.Int("to", target))
	for _, step := range migrationSteps() {
		if step.version > target || from >= step.version {
			continue
		}
		if err := s.applyStep(ctx, step); err != nil {
			return MigrationResult{}, fmt.Errorf("%w: step v%d %s: %v", ErrMigrationFailed, step.version, step.name, err)
		}
		result.Applied = append(result.Applied, step.name)
		s.logger.Info("schema migration applied",
			zap.Int("version", step.version),
			zap.String("migration", step.name))
	}

	if err := s.writeVersion(ctx, target); err != nil {
		return MigrationResult{}, fmt.Errorf("%w: write version: %v", ErrMigrationFailed, err)
	}
	s.logger.Info("schema migration completed", zap.Int("from", from), zap.Int("to", target))
	return result, nil
}

func (s *SchemaStore) applyStep(ctx context.Context, step migrationStep) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return execAll(tx, step.statements)
	})
}

func (s *SchemaStore) ensureTables(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return execAll(tx, bootstrapStatements())
	})
}

// writeVersion replaces the single version row.
func (s *SchemaStore) writeVersion(ctx context.Context, version int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM schema_version").Error; err != nil {
			return err
		}
		return tx.Create(&schemaVersionRecord{Version: version}).Error
	})
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, statement := range statements {
		if err := tx.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
