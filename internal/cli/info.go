package cli

import (
	"context"
	"fmt"

	"github.com/NikitaCOEUR/pylambda/internal/deploy"
	"github.com/NikitaCOEUR/pylambda/internal/status"
)

// InfoParams contains parameters for the info command
type InfoParams struct {
	Globals
	// Offline skips the AWS lookup
	Offline bool
}

// Info displays the project and deployed function state
func Info(ctx context.Context, params InfoParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}

	var source status.FunctionSource
	awsErr := ""
	if !params.Offline {
		clients, err := params.clients(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("AWS lookup disabled")
			awsErr = err.Error()
		} else {
			source = deploy.New(cfg, clients, log, params.output())
		}
	}

	data := status.Collect(ctx, cfg, params.dir(), source)
	if awsErr != "" {
		data.FunctionError = awsErr
	}

	fmt.Fprintln(params.output(), status.Render(data))
	return nil
}
