/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lexmatrix/internal/infrastructure/config"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/database"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/server"
)

// dbInitCmd applies the schema migrations to the configured SQL store.
var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "Apply database migrations",
	Long:  "Apply the embedded schema migrations. go-sqlite3 needs a CGO_ENABLED=1 build. --reset rolls every migration back first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reset, _ := cmd.Flags().GetBool("reset")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err := server.NewLogger(cfg)
		if err != nil {
			return err
		}
		driver, err := cfg.DatabaseDriver()
		if err != nil {
			return err
		}
		if driver == config.DriverMemory {
			return fmt.Errorf("the memory store has no schema to migrate")
		}

		db, cleanup, err := database.Open(cfg, logger)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer cleanup()

		if reset {
			if err := database.Reset(ctx, db, driver); err != nil {
				return err
			}
			logger.Warn("all migrations rolled back")
		}
		version, err := database.Migrate(ctx, db, driver, logger)
		if err != nil {
			return err
		}
		cmd.Printf("schema at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbInitCmd)
	dbInitCmd.Flags().Bool("reset", false, "roll back every migration before applying them again")
}
