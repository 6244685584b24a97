package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/churchmate/internal/auth"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bibleparser"
	"github.com/MarcoPoloResearchLab/churchmate/internal/bootstrap"
	"github.com/MarcoPoloResearchLab/churchmate/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Initialize the store and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.config.RequireAuth(); err != nil {
		return err
	}

	report, err := app.runner.Run(ctx)
	if err != nil {
		return err
	}
	for _, translation := range report.Translations {
		app.logger.Info("translation ready",
			zap.String("translation", translation.Translation),
			zap.Int("books", translation.Books),
			zap.Int("verses", translation.Verses),
			zap.Bool("placeholder", translation.Placeholder))
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(app.config.AuthSigningSecret),
		Issuer:        app.config.AuthIssuer,
		CookieName:    app.config.AuthCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Scripture:      app.scripture,
		Sessions:       validator,
		Importer:       app.runner,
		Realtime:       server.NewRealtimeDispatcher(),
		Logger:         app.logger,
		Clock:          time.Now,
		AllowedOrigins: app.config.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema to the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.schema.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(result.Applied) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "schema already at version %d\n", result.To)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema migrated from %d to %d (%s)\n",
				result.From, result.To, strings.Join(result.Applied, ", "))
			return nil
		},
	}
}

func newImportCommand() *cobra.Command {
	var sourcePath string
	cmd := &cobra.Command{
		Use:   "import <translation>",
		Short: "Parse a translation and re-seed it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.scripture.Init(ctx); err != nil {
				return err
			}

			translation := args[0]
			var (
				report    bootstrap.TranslationReport
				importErr error
			)
			if sourcePath == "" {
				report, importErr = app.runner.ImportFile(ctx, translation)
			} else {
				file, err := os.Open(sourcePath)
				if err != nil {
					return err
				}
				defer file.Close()
				report, importErr = app.runner.Import(ctx, translation, file)
			}
			if importErr != nil {
				return importErr
			}
			if report.Anomalies > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d anomalies skipped, see log\n", report.Translation, report.Anomalies)
			}

			stats, err := app.scripture.Stats(ctx, report.Translation)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d books, %d verses stored\n", stats.Translation, stats.Books, stats.Verses)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourcePath, "file", "", "Read markup from this file instead of the configured source")
	return cmd
}

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <translation> <file>",
		Short: "Compare parser output with a raw element census",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			translation, path := args[0], args[1]
			census, err := surveyFile(path)
			if err != nil {
				return err
			}

			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			parser := bibleparser.New(bibleparser.Config{IDBases: appConfig.IDBases(), Logger: logger})
			result, parseErr := parser.Parse(file, translation)
			if parseErr != nil && !errors.Is(parseErr, bibleparser.ErrEmptyParse) {
				return parseErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "markup:  %d books, %d chapters, %d verses\n", census.Books, census.Chapters, census.Verses)
			fmt.Fprintf(out, "parsed:  %d books, %d verses, %d anomalies\n", len(result.Books), len(result.Verses), len(result.Anomalies))
			for _, anomaly := range result.Anomalies {
				fmt.Fprintf(out, "  offset %d: %s\n", anomaly.Offset, anomaly.Message)
			}
			if census.Books != len(result.Books) || census.Verses != len(result.Verses) {
				return fmt.Errorf("inspect %s: parser output differs from markup census", path)
			}
			return parseErr
		},
	}
}

func surveyFile(path string) (bibleparser.Census, error) {
	file, err := os.Open(path)
	if err != nil {
		return bibleparser.Census{}, err
	}
	defer file.Close()
	return bibleparser.Survey(file)
}

func newTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		roles  []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if err := appConfig.RequireAuth(); err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(auth.SessionIdentity{
				UserID: userID,
				Email:  email,
				Roles:  roles,
			})
			if err != nil {
				return err
			}
			logger.Info("session token issued", zap.String("user_id", userID), zap.Strings("roles", roles), zap.Int64("expires_in", expiresIn))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id placed in the token subject")
	cmd.Flags().StringVar(&email, "email", "", "Optional user email claim")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role granted to the token (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	if err := cmd.MarkFlagRequired("user"); err != nil {
		panic(err)
	}
	return cmd
}
