package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config the application's configuration structure
type Config struct {
	Backend         string
	RedisAddress    string
	RedisPrefix     string
	SQLitePath      string
	PostgresDSN     string
	ConflictRetries int
	Dimensions      []DimensionConfig
}

// DimensionConfig declares the named dimensions of one voteable type.
type DimensionConfig struct {
	Type  string
	Names []string
}

// LoadConfig loads the config from a file if specified, otherwise from the environment
func LoadConfig(cmd *cobra.Command, envPrefix string) (*Config, error) {
	// Setting defaults for this application
	viper.SetDefault("backend", "sqlite")
	viper.SetDefault("redisAddress", "localhost:6379")
	viper.SetDefault("redisPrefix", "thumbsup")
	viper.SetDefault("sqlitePath", "thumbsup.db")
	viper.SetDefault("postgresDSN", "")
	viper.SetDefault("conflictRetries", 3)
	viper.SetDefault("dimensions", []DimensionConfig{})

	// Read Config from ENV
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	// Read Config from Flags
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}

	// Read Config from file
	if configFile, err := cmd.Flags().GetString("config-file"); err == nil && configFile != "" {
		viper.SetConfigFile(configFile)

		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config

	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
