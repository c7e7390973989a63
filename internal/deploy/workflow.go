package deploy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/NikitaCOEUR/pylambda/internal/packager"
	"github.com/NikitaCOEUR/pylambda/internal/timing"
	"github.com/NikitaCOEUR/pylambda/internal/trace"
)

// Bundler builds the zip bundle of a project
type Bundler interface {
	Build(ctx context.Context, opts packager.Options) (string, error)
}

// apply updates the function when it exists and creates it otherwise
func (d *Deployer) apply(ctx context.Context, code Code, preserveVPC bool) error {
	defer trace.Region(ctx, "deploy.apply")()

	existing, err := d.FunctionConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return d.Update(ctx, code, existing, preserveVPC)
	}
	_, err = d.Create(ctx, code)
	return err
}

// Deploy builds the bundle and deploys it inline. Returns the bundle path.
func (d *Deployer) Deploy(ctx context.Context, b Bundler, opts packager.Options, preserveVPC bool) (string, error) {
	timer := timing.NewTimer()

	path, err := b.Build(ctx, opts)
	if err != nil {
		return "", err
	}
	timer.Mark("build")

	code, err := ZipCode(path)
	if err != nil {
		return "", err
	}
	if err := d.apply(ctx, code, preserveVPC); err != nil {
		return "", err
	}
	timer.Mark("deploy")

	d.logSteps(timer)
	d.log.Info().Str("bundle", path).Str("timings", timer.Summary()).Msg("Deploy complete")
	return path, nil
}

// DeployS3 builds the bundle, uploads it and deploys the function from S3.
// Returns the object key.
func (d *Deployer) DeployS3(ctx context.Context, b Bundler, opts packager.Options, preserveVPC bool) (string, error) {
	timer := timing.NewTimer()

	key, err := d.UploadBundle(ctx, b, opts)
	if err != nil {
		return "", err
	}
	timer.Mark("upload")

	if err := d.apply(ctx, Code{S3Bucket: d.cfg.BucketName, S3Key: key}, preserveVPC); err != nil {
		return "", err
	}
	timer.Mark("deploy")

	d.logSteps(timer)
	d.log.Info().Str("key", key).Str("timings", timer.Summary()).Msg("Deploy complete")
	return key, nil
}

func (d *Deployer) logSteps(timer *timing.Timer) {
	for _, s := range timer.Steps() {
		d.log.Debug().Str("step", s.Label).Dur("duration_ms", s.Duration).Msg("Step finished")
	}
}

// UploadBundle builds the bundle and uploads it to S3 without deploying
func (d *Deployer) UploadBundle(ctx context.Context, b Bundler, opts packager.Options) (string, error) {
	defer trace.Region(ctx, "deploy.UploadBundle")()

	path, err := b.Build(ctx, opts)
	if err != nil {
		return "", err
	}
	return d.Upload(ctx, path)
}

// DeployImage points the function at a container image, creating an image
// function when none exists. Returns the deployed image URI.
func (d *Deployer) DeployImage(ctx context.Context, uri, tag string, preserveVPC bool) (string, error) {
	ref, err := d.cfg.ImageURI(uri, tag)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(d.out, "Deploying docker image with URI: %s\n", ref)

	if err := d.apply(ctx, Code{ImageURI: ref}, preserveVPC); err != nil {
		return "", err
	}
	return ref, nil
}

// FunctionInfo summarizes a deployed function
type FunctionInfo struct {
	Name             string
	Exists           bool
	ARN              string
	Runtime          string
	Handler          string
	Role             string
	Description      string
	PackageType      string
	State            string
	LastUpdateStatus string
	LastModified     string
	CodeSize         int64
	Timeout          int32
	MemorySize       int32
	Concurrency      int32
	Environment      map[string]string
	Tags             map[string]string
	SubnetIDs        []string
	SecurityGroupIDs []string
	// Versions counts published versions, $LATEST excluded
	Versions      int
	LatestVersion string
}

// Info gathers the state of the deployed function
func (d *Deployer) Info(ctx context.Context) (*FunctionInfo, error) {
	info := &FunctionInfo{Name: d.cfg.FunctionName}

	existing, err := d.FunctionConfig(ctx)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return info, nil
	}
	info.Exists = true
	info.Tags = existing.Tags
	if existing.Concurrency != nil {
		info.Concurrency = aws.ToInt32(existing.Concurrency.ReservedConcurrentExecutions)
	}

	if c := existing.Configuration; c != nil {
		info.ARN = aws.ToString(c.FunctionArn)
		info.Runtime = string(c.Runtime)
		info.Handler = aws.ToString(c.Handler)
		info.Role = aws.ToString(c.Role)
		info.Description = aws.ToString(c.Description)
		info.PackageType = string(c.PackageType)
		info.State = string(c.State)
		info.LastUpdateStatus = string(c.LastUpdateStatus)
		info.LastModified = aws.ToString(c.LastModified)
		info.CodeSize = c.CodeSize
		info.Timeout = aws.ToInt32(c.Timeout)
		info.MemorySize = aws.ToInt32(c.MemorySize)
		if c.Environment != nil {
			info.Environment = c.Environment.Variables
		}
		if c.VpcConfig != nil {
			info.SubnetIDs = c.VpcConfig.SubnetIds
			info.SecurityGroupIDs = c.VpcConfig.SecurityGroupIds
		}
	}

	versions, err := d.Versions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) > 1 {
		info.Versions = len(versions) - 1
		info.LatestVersion = aws.ToString(versions[len(versions)-1].Version)
	}
	return info, nil
}
