package main

import (
	"database/sql"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/churchmate/internal/bibleparser"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bootstrap"
	"github.com/MarcoPoloResearchLab/churchmate/internal/config"
	"github.com/MarcoPoloResearchLab/churchmate/internal/database"
	"github.com/MarcoPoloResearchLab/churchmate/internal/logging"
	"github.com/MarcoPoloResearchLab/churchmate/internal/scripture"
)

// application holds the components shared by every subcommand that touches the store.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	sqlDB     *sql.DB
	schema    *database.SchemaStore
	scripture *scripture.Service
	parser    *bibleparser.Parser
	runner    *bootstrap.Runner
}

func loadConfigAndLogger() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func openApplication() (*application, error) {
	appConfig, logger, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, sqlDB: sqlDB}
	if err := app.wire(db); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *application) wire(db *gorm.DB) error {
	schema, err := database.NewSchemaStore(db, app.logger)
	if err != nil {
		return err
	}
	service, err := scripture.NewService(scripture.ServiceConfig{
		Database:    db,
		SchemaStore: schema,
		Clock:       time.Now,
		Logger:      app.logger,
		BatchSize:   app.config.SeedBatchSize,
	})
	if err != nil {
		return err
	}
	parser := bibleparser.New(bibleparser.Config{
		IDBases: app.config.IDBases(),
		Logger:  app.logger,
	})
	marker, err := bootstrap.NewFileLaunchMarker(app.config.MarkerPath, time.Now)
	if err != nil {
		return err
	}
	runner, err := bootstrap.New(bootstrap.Config{
		Repository: service,
		Parser:     parser,
		Loader:     bootstrap.FileLoader{},
		Marker:     marker,
		Sources:    sourcesFromConfig(app.config.Sources),
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	app.schema = schema
	app.scripture = service
	app.parser = parser
	app.runner = runner
	return nil
}

func (app *application) Close() {
	if app.sqlDB != nil {
		_ = app.sqlDB.Close()
	}
	_ = app.logger.Sync()
}

func sourcesFromConfig(configured []config.SourceConfig) []bootstrap.Source {
	sources := make([]bootstrap.Source, 0, len(configured))
	for _, source := range configured {
		sources = append(sources, bootstrap.Source{
			Translation: source.Translation,
			Path:        source.Path,
			IDBase:      source.IDBase,
		})
	}
	return sources
}
