package cli

import (
	"context"
	"fmt"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/deploy"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/packager"
)

// BundleParams contains the dependency options of commands that build a zip bundle
type BundleParams struct {
	Globals
	Requirements  string
	LocalPackages []string
}

func (p BundleParams) options() packager.Options {
	return packager.Options{
		Requirements:  p.Requirements,
		LocalPackages: p.LocalPackages,
	}
}

func (p BundleParams) packager(cfg *config.Config, log *logger.Logger) *packager.Packager {
	return packager.New(cfg, p.dir(), newRunner(log), log, p.output())
}

// Build builds the zip bundle of the project
func Build(ctx context.Context, params BundleParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}

	path, err := params.packager(cfg, log).Build(ctx, params.options())
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Bundle created: %s\n", path)
	return nil
}

// DeployParams contains parameters for the deploy and deploy-s3 commands
type DeployParams struct {
	BundleParams
	PreserveVPC bool
}

// deployer builds the deployer and bundler for a project
func (p BundleParams) deployer(ctx context.Context) (*deploy.Deployer, *packager.Packager, error) {
	cfg, log, err := p.setup()
	if err != nil {
		return nil, nil, err
	}
	clients, err := p.clients(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return deploy.New(cfg, clients, log, p.output()), p.packager(cfg, log), nil
}

// Deploy builds the bundle and creates or updates the function with it
func Deploy(ctx context.Context, params DeployParams) error {
	d, bundler, err := params.deployer(ctx)
	if err != nil {
		return err
	}
	path, err := d.Deploy(ctx, bundler, params.options(), params.PreserveVPC)
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Deployed %s\n", path)
	return nil
}

// DeployS3 builds the bundle, uploads it and deploys the function from S3
func DeployS3(ctx context.Context, params DeployParams) error {
	d, bundler, err := params.deployer(ctx)
	if err != nil {
		return err
	}
	key, err := d.DeployS3(ctx, bundler, params.options(), params.PreserveVPC)
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Deployed s3://%s/%s\n", d.Bucket(), key)
	return nil
}

// Upload builds the bundle and uploads it to S3
func Upload(ctx context.Context, params BundleParams) error {
	d, bundler, err := params.deployer(ctx)
	if err != nil {
		return err
	}
	key, err := d.UploadBundle(ctx, bundler, params.options())
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Uploaded s3://%s/%s\n", d.Bucket(), key)
	return nil
}

// DeployImageParams contains parameters for the deploy-image command
type DeployImageParams struct {
	Globals
	ImageURI    string
	ImageTag    string
	PreserveVPC bool
}

// DeployImage points the function at a container image
func DeployImage(ctx context.Context, params DeployImageParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	clients, err := params.clients(ctx, cfg)
	if err != nil {
		return err
	}

	ref, err := deploy.New(cfg, clients, log, params.output()).DeployImage(ctx, params.ImageURI, params.ImageTag, params.PreserveVPC)
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Deployed %s\n", ref)
	return nil
}

// CleanupParams contains parameters for the cleanup command
type CleanupParams struct {
	Globals
	KeepLast int
}

// Cleanup deletes published versions of the function, keeping the newest ones
func Cleanup(ctx context.Context, params CleanupParams) error {
	if params.KeepLast < 0 {
		return errors.NewValidationError("keep-last", fmt.Sprintf("keep-last must not be negative, got %d", params.KeepLast), nil)
	}

	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	clients, err := params.clients(ctx, cfg)
	if err != nil {
		return err
	}
	return deploy.New(cfg, clients, log, params.output()).CleanupOldVersions(ctx, params.KeepLast)
}
