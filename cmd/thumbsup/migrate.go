package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or upgrade the ledger schema",
	Run:   migrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate(cmd *cobra.Command, args []string) {
	config := loadConfigOrPanic(cmd)

	migrateOrPanic(context.Background(), config)
	log.WithField("backend", config.Backend).Info("ledger schema is up to date")
}
