package main

import (
	"os"

	"github.com/dwizi/roster-assist/internal/cli"
	"github.com/dwizi/roster-assist/internal/config"
)

func main() {
	logger := cli.NewLogger(os.Stdout, config.FromEnv().LogLevel)
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
