// Package main is the entry point for the pylambda CLI application.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	plcli "github.com/NikitaCOEUR/pylambda/internal/cli"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/invoke"
	"github.com/NikitaCOEUR/pylambda/internal/trace"
	"github.com/NikitaCOEUR/pylambda/pkg/version"
)

const srcUsage = "[src]"

// globals reads the shared flags and the optional project directory
func globals(cmd *cli.Command) plcli.Globals {
	return plcli.Globals{
		Src:        cmd.Args().First(),
		ConfigFile: cmd.String("config-file"),
		Profile:    cmd.String("profile"),
		LogLevel:   cmd.String("log-level"),
		Out:        cmd.Root().Writer,
	}
}

func bundleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "requirements",
			Usage: "Install dependencies from this requirements file instead of pip freeze",
		},
		&cli.StringSliceFlag{
			Name:  "local-package",
			Usage: "Install a local package or specifier into the bundle (repeatable)",
		},
	}
}

func bundleParams(cmd *cli.Command) plcli.BundleParams {
	return plcli.BundleParams{
		Globals:       globals(cmd),
		Requirements:  cmd.String("requirements"),
		LocalPackages: cmd.StringSlice("local-package"),
	}
}

func preserveVPCFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "preserve-vpc",
		Usage: "Keep the VPC configuration of the deployed function",
	}
}

func imageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "image-uri", Usage: "Image URI, overrides lambda_image_uri"},
		&cli.StringFlag{Name: "image-tag", Usage: "Image tag, overrides lambda_image_tag"},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "pylambda",
		Usage:   "Build, deploy and invoke Python AWS Lambda functions",
		Version: version.String(),
		Writer:  os.Stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("PYLAMBDA_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:  "config-file",
				Value: config.DefaultConfigName,
				Usage: "Config file, relative to the project directory",
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "AWS profile, overrides the config file",
				Sources: cli.EnvVars("AWS_PROFILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Create a new function project",
				ArgsUsage: srcUsage,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "minimal", Usage: "Skip the sample event"},
					&cli.StringFlag{Name: "function-name", Usage: "Function name, defaults to the directory name"},
					&cli.StringFlag{Name: "description", Usage: "Function description"},
					&cli.StringFlag{Name: "runtime", Usage: "Lambda runtime, defaults to " + config.DefaultRuntime},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return plcli.Init(plcli.InitParams{
						Globals:      globals(cmd),
						FunctionName: cmd.String("function-name"),
						Description:  cmd.String("description"),
						Runtime:      cmd.String("runtime"),
						Minimal:      cmd.Bool("minimal"),
					})
				},
			},
			{
				Name:      "build",
				Usage:     "Build the deployment bundle",
				ArgsUsage: srcUsage,
				Flags:     bundleFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Build(ctx, bundleParams(cmd))
				},
			},
			{
				Name:      "build-image",
				Usage:     "Build the container image with docker buildx",
				ArgsUsage: srcUsage,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.BuildImage(ctx, globals(cmd))
				},
			},
			{
				Name:      "tag-image",
				Usage:     "Tag the local image with the ECR repository URI",
				ArgsUsage: srcUsage,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "local-image", Usage: "Local image, defaults to the --tag build variable"},
					&cli.StringFlag{Name: "image-tag", Usage: "Image tag, overrides lambda_image_tag"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.TagImage(ctx, plcli.TagImageParams{
						Globals:    globals(cmd),
						LocalImage: cmd.String("local-image"),
						ImageTag:   cmd.String("image-tag"),
					})
				},
			},
			{
				Name:      "push-image",
				Usage:     "Push the image to its registry",
				ArgsUsage: srcUsage,
				Flags:     imageFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.PushImage(ctx, plcli.PushImageParams{
						Globals:  globals(cmd),
						ImageURI: cmd.String("image-uri"),
						ImageTag: cmd.String("image-tag"),
					})
				},
			},
			{
				Name:      "invoke",
				Usage:     "Run the handler against an event",
				ArgsUsage: srcUsage,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "event-file", Value: invoke.DefaultEventFile, Usage: "Event file, relative to the project directory"},
					&cli.BoolFlag{Name: "verbose", Usage: "Print timing and the execution log"},
					&cli.BoolFlag{Name: "remote", Usage: "Invoke the deployed function"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Invoke(ctx, plcli.InvokeParams{
						Globals:   globals(cmd),
						EventFile: cmd.String("event-file"),
						Verbose:   cmd.Bool("verbose"),
						Remote:    cmd.Bool("remote"),
					})
				},
			},
			{
				Name:      "deploy",
				Usage:     "Build the bundle and deploy it",
				ArgsUsage: srcUsage,
				Flags:     append(bundleFlags(), preserveVPCFlag()),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Deploy(ctx, plcli.DeployParams{
						BundleParams: bundleParams(cmd),
						PreserveVPC:  cmd.Bool("preserve-vpc"),
					})
				},
			},
			{
				Name:      "deploy-image",
				Usage:     "Deploy a container image",
				ArgsUsage: srcUsage,
				Flags:     append(imageFlags(), preserveVPCFlag()),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.DeployImage(ctx, plcli.DeployImageParams{
						Globals:     globals(cmd),
						ImageURI:    cmd.String("image-uri"),
						ImageTag:    cmd.String("image-tag"),
						PreserveVPC: cmd.Bool("preserve-vpc"),
					})
				},
			},
			{
				Name:      "upload",
				Usage:     "Build the bundle and upload it to S3",
				ArgsUsage: srcUsage,
				Flags:     bundleFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Upload(ctx, bundleParams(cmd))
				},
			},
			{
				Name:      "deploy-s3",
				Usage:     "Build the bundle, upload it to S3 and deploy it from there",
				ArgsUsage: srcUsage,
				Flags:     append(bundleFlags(), preserveVPCFlag()),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.DeployS3(ctx, plcli.DeployParams{
						BundleParams: bundleParams(cmd),
						PreserveVPC:  cmd.Bool("preserve-vpc"),
					})
				},
			},
			{
				Name:      "cleanup",
				Usage:     "Delete old published versions",
				ArgsUsage: srcUsage,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "keep-last", Required: true, Usage: "Number of versions to keep"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Cleanup(ctx, plcli.CleanupParams{
						Globals:  globals(cmd),
						KeepLast: int(cmd.Int("keep-last")),
					})
				},
			},
			{
				Name:      "validate",
				Usage:     "Validate the project configuration",
				ArgsUsage: srcUsage,
				Action: func(_ context.Context, cmd *cli.Command) error {
					return plcli.Validate(globals(cmd))
				},
			},
			{
				Name:  "schema",
				Usage: "Display or export the JSON Schema for configuration files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the schema to this file"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return plcli.Schema(cmd.String("output"), cmd.Root().Writer)
				},
			},
			{
				Name:      "info",
				Usage:     "Show the project and deployed function state",
				ArgsUsage: srcUsage,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "offline", Usage: "Skip the AWS lookup"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return plcli.Info(ctx, plcli.InfoParams{
						Globals: globals(cmd),
						Offline: cmd.Bool("offline"),
					})
				},
			},
		},
	}
}

func main() {
	stop := trace.Init()
	err := newApp().Run(context.Background(), os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
