package main

import (
	"github.com/spf13/cobra"
)

const envPrefix = "THUMBSUP"

var rootCmd = &cobra.Command{
	Use:   "thumbsup <subcommand>",
	Short: "operates a thumbsup vote ledger",
	Long:  `operates a thumbsup vote ledger: schema migration, tallies, rankings and cascade deletes`,
	Run:   nil,
}

func init() {
	cobra.OnInitialize()
	rootCmd.PersistentFlags().StringP("config-file", "c", "", "Path to the config file (eg ./config.yaml) [Optional]")
	rootCmd.PersistentFlags().StringP("backend", "b", "", "Ledger backend: memory, redis, sqlite or postgres [Optional]")
}
