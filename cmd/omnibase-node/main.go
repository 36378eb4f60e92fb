// Package main runs the omnibase as a standalone node bridged to MQTT.
package main

import (
	"context"
	"flag"

	goutils "go.viam.com/utils"

	"go.viam.com/rdk/logging"

	"omnibase/cmd/omnibase-node/app"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewLogger("omnibaseNode"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	flags := flag.NewFlagSet("omnibase-node", flag.ContinueOnError)
	configPath := flags.String("c", "", "Path to the configuration file")
	envFile := flags.String("env", ".env", "Environment file with credential overrides")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	config, err := app.LoadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	return app.Run(ctx, config, logger)
}
