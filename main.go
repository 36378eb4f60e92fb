// Package main is the Viam module serving the serial omnibase.
package main

import (
	"context"

	goutils "go.viam.com/utils"

	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"

	"omnibase/omnibase"
)

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewDebugLogger("omnibaseModule"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	omniModule, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}
	if err := omniModule.AddModelFromRegistry(ctx, base.API, omnibase.Model); err != nil {
		return err
	}

	err = omniModule.Start(ctx)
	defer omniModule.Close(ctx)

	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
