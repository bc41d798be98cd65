package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <Type#ID>",
	Short: "delete every vote cast by or on an entity",
	Args:  cobra.ExactArgs(1),
	Run:   forget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func forget(cmd *cobra.Command, args []string) {
	config := loadConfigOrPanic(cmd)

	entity, err := parseRef(args[0])
	if err != nil {
		panicWithError(err, "invalid entity")
	}

	svc := getService(openLedgerOrPanic(config), config)
	defer closeOrLog(svc)

	removed, err := svc.ForgetEntity(context.Background(), entity)
	if err != nil {
		panicWithError(err, "failed to forget %v", entity)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d votes of %v\n", removed, entity)
}
