// admissions runs the admissions back office: the public test intake, the
// operator API and the nurture scheduler.
//
// Usage:
//
//	admissions serve
//	admissions migrate
//	admissions create-admin --email ops@example.com --name "Ops Lead"
//	admissions attendees list --type aptitude
package main

import (
	"fmt"
	"os"

	"admissions-go/internal/config"
	"admissions-go/internal/database"
	logger "admissions-go/internal/logging"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	version     = "dev"
	projectRoot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "admissions",
		Short: "Admissions back office for scholarship and aptitude tests",
		Long: `admissions records test results, issues scholarship coupons and
drives email, WhatsApp and voice nurture for every attendee.

Running it without a subcommand starts the HTTP server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "Project root containing config/ and logs/")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(attendeesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, the logger and the database shared by every
// command. The returned func flushes the logger and closes the pool.
func bootstrap() (*zap.Logger, *gorm.DB, func(), error) {
	bootLog, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to initialize bootstrap logger")
	}
	if err := config.Init(projectRoot, bootLog); err != nil {
		return nil, nil, nil, err
	}
	conf := config.Get()

	log, err := logger.Init(projectRoot, conf.Logging)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to initialize logger")
	}
	log = logger.WithRollbar(log, conf.Rollbar)

	db, err := database.Open(conf.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logger.Close()
		_ = log.Sync()
	}
	return log, db, cleanup, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, db, cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()
			return database.Migrate(db, log)
		},
	}
}
