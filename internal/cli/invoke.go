package cli

import (
	"context"

	"github.com/NikitaCOEUR/pylambda/internal/invoke"
)

// InvokeParams contains parameters for the invoke command
type InvokeParams struct {
	Globals
	EventFile string
	Verbose   bool
	// Remote invokes the deployed function instead of the local handler
	Remote bool
}

// Invoke runs the handler against an event file
func Invoke(ctx context.Context, params InvokeParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	opts := invoke.Options{EventFile: params.EventFile, Verbose: params.Verbose}

	if !params.Remote {
		return invoke.New(cfg, params.dir(), newRunner(log), nil, log, params.output()).Local(ctx, opts)
	}

	clients, err := params.clients(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke.New(cfg, params.dir(), nil, clients.Lambda, log, params.output()).Remote(ctx, opts)
}
