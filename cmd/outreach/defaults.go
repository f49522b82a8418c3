package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Global
	viper.SetDefault("file_state_dir", "~/.outreach")

	// Cadence
	viper.SetDefault("cadence.policy_file", "")
	viper.SetDefault("cadence.poll_interval", 5*time.Minute)

	// Collaborator stubs
	viper.SetDefault("classify.assume_category", "new")

	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("verbose", false)
}
