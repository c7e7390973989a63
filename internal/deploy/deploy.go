// Package deploy creates, updates and maintains Lambda functions from a
// pylambda config.
package deploy

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/NikitaCOEUR/pylambda/internal/awsclient"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/trace"
)

// MaxUpdateWait bounds how long an update waits for the function to settle
const MaxUpdateWait = 5 * time.Minute

// WaitFunc blocks until the named function has finished updating
type WaitFunc func(ctx context.Context, functionName string) error

// Code is the artifact a function runs: exactly one of the zip bytes, the S3
// object or the image URI is set.
type Code struct {
	ZipFile  []byte
	S3Bucket string
	S3Key    string
	ImageURI string
}

// ZipCode reads a bundle from disk
func ZipCode(path string) (Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Code{}, errors.NewPackagingError(path, "failed to read bundle", err)
	}
	return Code{ZipFile: data}, nil
}

// IsImage reports whether the code is a container image
func (c Code) IsImage() bool {
	return c.ImageURI != ""
}

func (c Code) isS3() bool {
	return c.S3Key != ""
}

func (c Code) functionCode() *types.FunctionCode {
	switch {
	case c.IsImage():
		return &types.FunctionCode{ImageUri: aws.String(c.ImageURI)}
	case c.isS3():
		return &types.FunctionCode{S3Bucket: aws.String(c.S3Bucket), S3Key: aws.String(c.S3Key)}
	default:
		return &types.FunctionCode{ZipFile: c.ZipFile}
	}
}

// Deployer runs Lambda operations for one project
type Deployer struct {
	cfg    *config.Config
	lambda awsclient.LambdaAPI
	s3     awsclient.S3API
	sts    awsclient.STSAPI
	log    *logger.Logger
	out    io.Writer
	wait   WaitFunc
	now    func() time.Time
	region string
}

// New creates a deployer using the given clients
func New(cfg *config.Config, clients *awsclient.Clients, log *logger.Logger, out io.Writer) *Deployer {
	return &Deployer{
		cfg:    cfg,
		lambda: clients.Lambda,
		s3:     clients.S3,
		sts:    clients.STS,
		log:    log.With("deploy"),
		out:    out,
		wait:   updatedWaiter(clients.Lambda),
		now:    time.Now,
		region: clients.Region,
	}
}

func updatedWaiter(client lambda.GetFunctionAPIClient) WaitFunc {
	return func(ctx context.Context, functionName string) error {
		waiter := lambda.NewFunctionUpdatedV2Waiter(client)
		return waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(functionName)}, MaxUpdateWait)
	}
}

// FunctionConfig returns the deployed function, or nil when it does not exist
func (d *Deployer) FunctionConfig(ctx context.Context) (*lambda.GetFunctionOutput, error) {
	out, err := d.lambda.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(d.cfg.FunctionName),
	})
	if awsclient.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewAWSError("GetFunction", fmt.Sprintf("failed to get function %s", d.cfg.FunctionName), err)
	}
	return out, nil
}

// AccountID returns the account of the calling identity
func (d *Deployer) AccountID(ctx context.Context) (string, error) {
	out, err := d.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.NewAWSError("GetCallerIdentity", "failed to resolve AWS account", err)
	}
	return aws.ToString(out.Account), nil
}

func (d *Deployer) roleARN(ctx context.Context) (string, error) {
	accountID := ""
	if !d.cfg.HasRoleARN() {
		var err error
		if accountID, err = d.AccountID(ctx); err != nil {
			return "", err
		}
	}
	return d.cfg.RoleARN(accountID), nil
}

func (d *Deployer) vpcConfig() *types.VpcConfig {
	return &types.VpcConfig{
		SubnetIds:        append([]string{}, d.cfg.SubnetIDs...),
		SecurityGroupIds: append([]string{}, d.cfg.SecurityGroupIDs...),
	}
}

func (d *Deployer) environment() *types.Environment {
	if !d.cfg.HasEnvironment() {
		return nil
	}
	return &types.Environment{Variables: d.cfg.ResolvedEnvironment()}
}

// Create registers a new function and publishes its first version
func (d *Deployer) Create(ctx context.Context, code Code) (*lambda.CreateFunctionOutput, error) {
	fmt.Fprintln(d.out, "Creating your new Lambda function")

	role, err := d.roleARN(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(d.out, "Creating lambda function with name: %s\n", d.cfg.FunctionName)
	in := &lambda.CreateFunctionInput{
		FunctionName: aws.String(d.cfg.FunctionName),
		Role:         aws.String(role),
		Code:         code.functionCode(),
		Description:  aws.String(d.cfg.Description),
		Timeout:      aws.Int32(int32(d.cfg.Timeout)),
		MemorySize:   aws.Int32(int32(d.cfg.MemorySize)),
		VpcConfig:    d.vpcConfig(),
		Publish:      true,
		Environment:  d.environment(),
	}
	if code.IsImage() {
		in.PackageType = types.PackageTypeImage
	} else {
		in.PackageType = types.PackageTypeZip
		in.Runtime = types.Runtime(d.cfg.Runtime)
		in.Handler = aws.String(d.cfg.Handler)
	}
	if d.cfg.HasTags() {
		in.Tags = d.cfg.StringTags()
	}

	out, err := d.lambda.CreateFunction(ctx, in)
	if awsclient.IsConflict(err) {
		return nil, errors.NewAlreadyExistsError(d.cfg.FunctionName,
			fmt.Sprintf("function %s already exists", d.cfg.FunctionName))
	}
	if err != nil {
		return nil, errors.NewAWSError("CreateFunction", fmt.Sprintf("failed to create function %s", d.cfg.FunctionName), err)
	}
	d.log.Info().Str("function", d.cfg.FunctionName).Str("version", aws.ToString(out.Version)).Msg("Function created")

	if concurrency := d.cfg.ReservedConcurrency(); concurrency > 0 {
		if err := d.putConcurrency(ctx, concurrency); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update replaces the code and configuration of an existing function.
// With preserveVPC the function keeps its current VPC attachment.
func (d *Deployer) Update(ctx context.Context, code Code, existing *lambda.GetFunctionOutput, preserveVPC bool) error {
	fmt.Fprintln(d.out, "Updating your Lambda function")
	name := d.cfg.FunctionName
	trace.Log(ctx, "deploy.Update", name)

	role, err := d.roleARN(ctx)
	if err != nil {
		return err
	}

	codeIn := &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		Publish:      true,
	}
	switch {
	case code.IsImage():
		codeIn.ImageUri = aws.String(code.ImageURI)
	case code.isS3():
		codeIn.S3Bucket = aws.String(code.S3Bucket)
		codeIn.S3Key = aws.String(code.S3Key)
	default:
		codeIn.ZipFile = code.ZipFile
	}
	if _, err := d.lambda.UpdateFunctionCode(ctx, codeIn); err != nil {
		return errors.NewAWSError("UpdateFunctionCode", fmt.Sprintf("failed to update code of %s", name), err)
	}

	if err := d.waitUpdated(ctx); err != nil {
		return err
	}

	cfgIn := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		Role:         aws.String(role),
		Description:  aws.String(d.cfg.Description),
		Timeout:      aws.Int32(int32(d.cfg.Timeout)),
		MemorySize:   aws.Int32(int32(d.cfg.MemorySize)),
		VpcConfig:    d.updateVPC(existing, preserveVPC),
		Environment:  d.environment(),
	}
	// Image functions reject runtime and handler
	if !code.IsImage() {
		cfgIn.Runtime = types.Runtime(d.cfg.Runtime)
		cfgIn.Handler = aws.String(d.cfg.Handler)
	}

	updated, err := d.lambda.UpdateFunctionConfiguration(ctx, cfgIn)
	if err != nil {
		return errors.NewAWSError("UpdateFunctionConfiguration", fmt.Sprintf("failed to update configuration of %s", name), err)
	}

	if err := d.waitUpdated(ctx); err != nil {
		return err
	}

	if concurrency := d.cfg.ReservedConcurrency(); concurrency > 0 {
		if err := d.putConcurrency(ctx, concurrency); err != nil {
			return err
		}
	} else if existing != nil && existing.Concurrency != nil && existing.Concurrency.ReservedConcurrentExecutions != nil {
		_, err := d.lambda.DeleteFunctionConcurrency(ctx, &lambda.DeleteFunctionConcurrencyInput{FunctionName: aws.String(name)})
		if err != nil {
			return errors.NewAWSError("DeleteFunctionConcurrency", fmt.Sprintf("failed to remove concurrency of %s", name), err)
		}
	}

	if d.cfg.HasTags() {
		var existingTags map[string]string
		if existing != nil {
			existingTags = existing.Tags
		}
		if err := d.syncTags(ctx, aws.ToString(updated.FunctionArn), existingTags); err != nil {
			return err
		}
	}

	d.log.Info().Str("function", name).Bool("preserve_vpc", preserveVPC).Msg("Function updated")
	return nil
}

func (d *Deployer) waitUpdated(ctx context.Context) error {
	d.log.Debug().Str("function", d.cfg.FunctionName).Msg("Waiting for function update")
	if err := d.wait(ctx, d.cfg.FunctionName); err != nil {
		return errors.NewAWSError("GetFunction", fmt.Sprintf("function %s did not finish updating", d.cfg.FunctionName), err)
	}
	return nil
}

// updateVPC picks the VPC attachment for a configuration update
func (d *Deployer) updateVPC(existing *lambda.GetFunctionOutput, preserveVPC bool) *types.VpcConfig {
	if !preserveVPC || existing == nil || existing.Configuration == nil || existing.Configuration.VpcConfig == nil {
		return d.vpcConfig()
	}
	current := existing.Configuration.VpcConfig
	return &types.VpcConfig{
		SubnetIds:        current.SubnetIds,
		SecurityGroupIds: current.SecurityGroupIds,
	}
}

func (d *Deployer) putConcurrency(ctx context.Context, concurrency int) error {
	_, err := d.lambda.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
		FunctionName:                 aws.String(d.cfg.FunctionName),
		ReservedConcurrentExecutions: aws.Int32(int32(concurrency)),
	})
	if err != nil {
		return errors.NewAWSError("PutFunctionConcurrency", fmt.Sprintf("failed to set concurrency of %s", d.cfg.FunctionName), err)
	}
	return nil
}

// syncTags replaces the function tags when they differ from the config
func (d *Deployer) syncTags(ctx context.Context, arn string, existing map[string]string) error {
	tags := d.cfg.StringTags()
	if maps.Equal(tags, existing) {
		return nil
	}

	if len(existing) > 0 {
		keys := make([]string, 0, len(existing))
		for k := range existing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if _, err := d.lambda.UntagResource(ctx, &lambda.UntagResourceInput{Resource: aws.String(arn), TagKeys: keys}); err != nil {
			return errors.NewAWSError("UntagResource", "failed to remove function tags", err)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	if _, err := d.lambda.TagResource(ctx, &lambda.TagResourceInput{Resource: aws.String(arn), Tags: tags}); err != nil {
		return errors.NewAWSError("TagResource", "failed to tag function", err)
	}
	return nil
}

// S3Key returns the object key for a bundle: the prefix, the md5 of its
// content and the upload time in fractional unix seconds.
func (d *Deployer) S3Key(data []byte) string {
	sum := md5.Sum(data)
	ts := strconv.FormatFloat(float64(d.now().UnixMicro())/1e6, 'f', -1, 64)
	return fmt.Sprintf("%s%s-%s.zip", d.cfg.S3KeyPrefix, hex.EncodeToString(sum[:]), ts)
}

// Bucket returns the bucket bundles are uploaded to
func (d *Deployer) Bucket() string {
	return d.cfg.BucketName
}

// Upload stores the bundle in the configured bucket and returns its key
func (d *Deployer) Upload(ctx context.Context, zipPath string) (string, error) {
	fmt.Fprintln(d.out, "Uploading your new Lambda function")
	if d.cfg.BucketName == "" {
		return "", errors.NewValidationError("bucket_name", "bucket_name must be set in the config file or S3_BUCKET_NAME", nil)
	}

	data, err := os.ReadFile(zipPath)
	if err != nil {
		return "", errors.NewPackagingError(zipPath, "failed to read bundle", err)
	}
	key := d.S3Key(data)
	d.log.Debug().
		Str("bucket", d.cfg.BucketName).
		Str("region", d.region).
		Int64("size", int64(len(data))).
		Msg("Uploading bundle")

	_, err = d.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.cfg.BucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", errors.NewAWSError("PutObject", fmt.Sprintf("failed to upload to bucket %s", d.cfg.BucketName), err)
	}

	fmt.Fprintf(d.out, "Finished uploading %s to S3 bucket %s\n", d.cfg.FunctionName, d.cfg.BucketName)
	return key, nil
}

// Versions lists every published version of the function, $LATEST first
func (d *Deployer) Versions(ctx context.Context) ([]types.FunctionConfiguration, error) {
	var versions []types.FunctionConfiguration
	paginator := lambda.NewListVersionsByFunctionPaginator(d.lambda, &lambda.ListVersionsByFunctionInput{
		FunctionName: aws.String(d.cfg.FunctionName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewAWSError("ListVersionsByFunction", fmt.Sprintf("failed to list versions of %s", d.cfg.FunctionName), err)
		}
		versions = append(versions, page.Versions...)
	}
	return versions, nil
}

// CleanupOldVersions deletes published versions, keeping $LATEST and the
// last keep versions. Versions that cannot be deleted (aliased ones) are
// reported and skipped.
func (d *Deployer) CleanupOldVersions(ctx context.Context, keep int) error {
	if keep <= 0 {
		fmt.Fprintln(d.out, "Won't delete all versions. Please do this manually")
		return nil
	}

	versions, err := d.Versions(ctx)
	if err != nil {
		return err
	}
	if len(versions) < keep {
		fmt.Fprintln(d.out, "Nothing to delete. (Too few versions published)")
		return nil
	}

	end := len(versions) - keep
	if end <= 1 {
		return nil
	}
	deleted := 0
	for _, v := range versions[1:end] {
		version := aws.ToString(v.Version)
		_, err := d.lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
			FunctionName: aws.String(d.cfg.FunctionName),
			Qualifier:    aws.String(version),
		})
		if err != nil {
			fmt.Fprintf(d.out, "Skipping Version %s: %v\n", version, err)
			continue
		}
		d.log.Debug().Str("function", d.cfg.FunctionName).Str("version", version).Msg("Deleted version")
		deleted++
	}
	d.log.Info().Str("function", d.cfg.FunctionName).Msgf("Deleted %d old versions", deleted)
	return nil
}
