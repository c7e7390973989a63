// Package invoke runs a function handler against an event, either locally
// through a python interpreter or remotely on Lambda.
package invoke

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/joho/godotenv"

	"github.com/NikitaCOEUR/pylambda/internal/awsclient"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/runner"
)

// DefaultEventFile is the event read when none is given
const DefaultEventFile = "event.json"

//go:embed scripts/runner.py
var runnerScript string

// Options controls an invocation
type Options struct {
	EventFile string
	Verbose   bool
}

// Invoker calls the handler of one project
type Invoker struct {
	cfg    *config.Config
	src    string
	runner runner.Runner
	lambda awsclient.LambdaAPI
	log    *logger.Logger
	out    io.Writer
	python string
}

// New creates an invoker. The runner is used for local invocations and the
// Lambda client for remote ones; either may be nil when unused.
func New(cfg *config.Config, src string, r runner.Runner, client awsclient.LambdaAPI, log *logger.Logger, out io.Writer) *Invoker {
	return &Invoker{
		cfg:    cfg,
		src:    src,
		runner: r,
		lambda: client,
		log:    log.With("invoke"),
		out:    out,
		python: runner.Python(),
	}
}

// ReadEvent loads the event file relative to the project and checks it is JSON
func (i *Invoker) ReadEvent(name string) (string, []byte, error) {
	if name == "" {
		name = DefaultEventFile
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(i.src, name)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil, errors.NewNotFoundError(path, fmt.Sprintf("event file not found: %s", path))
	}
	if err != nil {
		return "", nil, errors.NewConfigurationError(path, "failed to read event file", err)
	}
	if !json.Valid(data) {
		return "", nil, errors.NewValidationError("event", fmt.Sprintf("event file %s is not valid JSON", path), nil)
	}
	return path, data, nil
}

// Environment returns the variables exported to a local invocation: the
// profile, then the project .env file, then environment_variables. Values
// from .env never override the current process environment.
func (i *Invoker) Environment() ([]string, error) {
	env := make(map[string]string)

	if i.cfg.Profile != "" {
		env["AWS_PROFILE"] = i.cfg.Profile
	}

	dotenv := filepath.Join(i.src, ".env")
	if _, err := os.Stat(dotenv); err == nil {
		values, err := godotenv.Read(dotenv)
		if err != nil {
			return nil, errors.NewConfigurationError(dotenv, "failed to parse .env file", err)
		}
		for k, v := range values {
			if _, set := os.LookupEnv(k); !set {
				env[k] = v
			}
		}
		i.log.Debug().Str("file", dotenv).Int("variables", len(values)).Msg("Loaded .env file")
	}

	for k, v := range i.cfg.ResolvedEnvironment() {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]string, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, k+"="+env[k])
	}
	return vars, nil
}

// LocalCommand returns the python invocation of the handler
func (i *Invoker) LocalCommand(eventPath string, verbose bool) (runner.Command, error) {
	module, function, err := i.cfg.HandlerParts()
	if err != nil {
		return runner.Command{}, err
	}
	src, err := filepath.Abs(i.src)
	if err != nil {
		return runner.Command{}, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	flag := "0"
	if verbose {
		flag = "1"
	}
	return runner.Command{
		Name: i.python,
		Args: []string{
			"-c", runnerScript,
			src, module, function, eventPath,
			i.cfg.FunctionName,
			fmt.Sprint(i.cfg.Timeout),
			fmt.Sprint(i.cfg.MemorySize),
			i.cfg.Region,
			flag,
		},
		Dir: src,
	}, nil
}

// Local runs the handler with a python interpreter on this machine
func (i *Invoker) Local(ctx context.Context, opts Options) error {
	eventPath, _, err := i.ReadEvent(opts.EventFile)
	if err != nil {
		return err
	}
	if eventPath, err = filepath.Abs(eventPath); err != nil {
		return fmt.Errorf("failed to resolve event file: %w", err)
	}

	env, err := i.Environment()
	if err != nil {
		return err
	}

	cmd, err := i.LocalCommand(eventPath, opts.Verbose)
	if err != nil {
		return err
	}
	cmd.Env = env
	cmd.Stdout = i.out

	i.log.Debug().Str("handler", i.cfg.Handler).Str("event", eventPath).Msg("Invoking handler locally")
	return i.runner.Run(ctx, cmd)
}

// Remote invokes the deployed function synchronously and prints its response.
// With verbose the tail of the execution log is printed as well.
func (i *Invoker) Remote(ctx context.Context, opts Options) error {
	_, payload, err := i.ReadEvent(opts.EventFile)
	if err != nil {
		return err
	}

	out, err := i.lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(i.cfg.FunctionName),
		Payload:      payload,
		LogType:      types.LogTypeTail,
	})
	if awsclient.IsNotFound(err) {
		return errors.NewNotFoundError(i.cfg.FunctionName, fmt.Sprintf("function %s is not deployed", i.cfg.FunctionName))
	}
	if err != nil {
		return errors.NewAWSError("Invoke", fmt.Sprintf("failed to invoke %s", i.cfg.FunctionName), err)
	}

	fmt.Fprintln(i.out, string(out.Payload))

	if opts.Verbose && out.LogResult != nil {
		logs, err := base64.StdEncoding.DecodeString(*out.LogResult)
		if err != nil {
			i.log.Warn().Err(err).Msg("Failed to decode log tail")
		} else {
			fmt.Fprintf(i.out, "\n%s", logs)
		}
	}

	if out.FunctionError != nil {
		return errors.NewExecutionError(i.cfg.FunctionName,
			fmt.Sprintf("function returned an error (%s)", aws.ToString(out.FunctionError)), nil)
	}
	return nil
}
