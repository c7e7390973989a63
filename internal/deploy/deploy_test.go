package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikitaCOEUR/pylambda/internal/awsclient"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/packager"
)

type fakeLambda struct {
	function  *lambda.GetFunctionOutput
	getErr    error
	createErr error

	created      []*lambda.CreateFunctionInput
	codeUpdates  []*lambda.UpdateFunctionCodeInput
	cfgUpdates   []*lambda.UpdateFunctionConfigurationInput
	concurrency  []*lambda.PutFunctionConcurrencyInput
	concDeleted  int
	tagged       []*lambda.TagResourceInput
	untagged     []*lambda.UntagResourceInput
	deleted      []string
	deleteFailOn string

	versionPages [][]string
	calls        []string
}

func (f *fakeLambda) GetFunction(_ context.Context, in *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	f.calls = append(f.calls, "GetFunction")
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.function == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Function not found: " + aws.ToString(in.FunctionName))}
	}
	return f.function, nil
}

func (f *fakeLambda) CreateFunction(_ context.Context, in *lambda.CreateFunctionInput, _ ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	f.calls = append(f.calls, "CreateFunction")
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &lambda.CreateFunctionOutput{FunctionArn: aws.String("arn:fn"), Version: aws.String("1")}, nil
}

func (f *fakeLambda) UpdateFunctionCode(_ context.Context, in *lambda.UpdateFunctionCodeInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	f.calls = append(f.calls, "UpdateFunctionCode")
	f.codeUpdates = append(f.codeUpdates, in)
	return &lambda.UpdateFunctionCodeOutput{}, nil
}

func (f *fakeLambda) UpdateFunctionConfiguration(_ context.Context, in *lambda.UpdateFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	f.calls = append(f.calls, "UpdateFunctionConfiguration")
	f.cfgUpdates = append(f.cfgUpdates, in)
	return &lambda.UpdateFunctionConfigurationOutput{FunctionArn: aws.String("arn:fn")}, nil
}

func (f *fakeLambda) PutFunctionConcurrency(_ context.Context, in *lambda.PutFunctionConcurrencyInput, _ ...func(*lambda.Options)) (*lambda.PutFunctionConcurrencyOutput, error) {
	f.calls = append(f.calls, "PutFunctionConcurrency")
	f.concurrency = append(f.concurrency, in)
	return &lambda.PutFunctionConcurrencyOutput{}, nil
}

func (f *fakeLambda) DeleteFunctionConcurrency(context.Context, *lambda.DeleteFunctionConcurrencyInput, ...func(*lambda.Options)) (*lambda.DeleteFunctionConcurrencyOutput, error) {
	f.calls = append(f.calls, "DeleteFunctionConcurrency")
	f.concDeleted++
	return &lambda.DeleteFunctionConcurrencyOutput{}, nil
}

func (f *fakeLambda) TagResource(_ context.Context, in *lambda.TagResourceInput, _ ...func(*lambda.Options)) (*lambda.TagResourceOutput, error) {
	f.calls = append(f.calls, "TagResource")
	f.tagged = append(f.tagged, in)
	return &lambda.TagResourceOutput{}, nil
}

func (f *fakeLambda) UntagResource(_ context.Context, in *lambda.UntagResourceInput, _ ...func(*lambda.Options)) (*lambda.UntagResourceOutput, error) {
	f.calls = append(f.calls, "UntagResource")
	f.untagged = append(f.untagged, in)
	return &lambda.UntagResourceOutput{}, nil
}

func (f *fakeLambda) ListVersionsByFunction(_ context.Context, in *lambda.ListVersionsByFunctionInput, _ ...func(*lambda.Options)) (*lambda.ListVersionsByFunctionOutput, error) {
	f.calls = append(f.calls, "ListVersionsByFunction")
	page := 0
	if in.Marker != nil {
		fmt.Sscanf(*in.Marker, "%d", &page)
	}
	out := &lambda.ListVersionsByFunctionOutput{}
	if page >= len(f.versionPages) {
		return out, nil
	}
	for _, v := range f.versionPages[page] {
		out.Versions = append(out.Versions, types.FunctionConfiguration{Version: aws.String(v)})
	}
	if page+1 < len(f.versionPages) {
		out.NextMarker = aws.String(fmt.Sprint(page + 1))
	}
	return out, nil
}

func (f *fakeLambda) DeleteFunction(_ context.Context, in *lambda.DeleteFunctionInput, _ ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	f.calls = append(f.calls, "DeleteFunction")
	q := aws.ToString(in.Qualifier)
	if q == f.deleteFailOn {
		return nil, fmt.Errorf("version %s has an alias", q)
	}
	f.deleted = append(f.deleted, q)
	return &lambda.DeleteFunctionOutput{}, nil
}

func (f *fakeLambda) Invoke(context.Context, *lambda.InvokeInput, ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	return nil, fmt.Errorf("not implemented")
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	body []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakeSTS struct{}

func (fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{Account: aws.String("111122223333")}, nil
}

type fakeBundler struct {
	path string
	opts packager.Options
}

func (b *fakeBundler) Build(_ context.Context, opts packager.Options) (string, error) {
	b.opts = opts
	return b.path, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Region:               "us-east-1",
		FunctionName:         "my_function",
		Handler:              "service.handler",
		Role:                 "lambda_basic_execution",
		Description:          "desc",
		Runtime:              "python3.12",
		Timeout:              30,
		MemorySize:           256,
		BucketName:           "bucket",
		S3KeyPrefix:          "/dist",
		SubnetIDs:            []string{"subnet-cfg"},
		SecurityGroupIDs:     []string{"sg-cfg"},
		EnvironmentVariables: map[string]interface{}{"STAGE": "prod"},
	}
}

type harness struct {
	deployer *Deployer
	lambda   *fakeLambda
	s3       *fakeS3
	out      *bytes.Buffer
	logs     *bytes.Buffer
	waits    int
}

func newHarness(cfg *config.Config) *harness {
	h := &harness{lambda: &fakeLambda{}, s3: &fakeS3{}, out: &bytes.Buffer{}, logs: &bytes.Buffer{}}
	clients := &awsclient.Clients{Lambda: h.lambda, S3: h.s3, STS: fakeSTS{}, Region: "eu-west-3"}
	h.deployer = New(cfg, clients, logger.New("debug", h.logs), h.out)
	h.deployer.wait = func(context.Context, string) error {
		h.waits++
		h.lambda.calls = append(h.lambda.calls, "Wait")
		return nil
	}
	h.deployer.now = func() time.Time { return time.Unix(1700000000, 250000000) }
	return h
}

func writeBundle(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFunctionConfig_NotFound(t *testing.T) {
	h := newHarness(testConfig())

	existing, err := h.deployer.FunctionConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestFunctionConfig_Error(t *testing.T) {
	h := newHarness(testConfig())
	h.lambda.getErr = fmt.Errorf("access denied")

	_, err := h.deployer.FunctionConfig(context.Background())
	assert.Error(t, err)
}

func TestCreate_Zip(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 4
	cfg.Tags = map[string]interface{}{"team": "data", "n": 1}
	h := newHarness(cfg)

	_, err := h.deployer.Create(context.Background(), Code{ZipFile: []byte("zip")})
	require.NoError(t, err)

	require.Len(t, h.lambda.created, 1)
	in := h.lambda.created[0]
	assert.Equal(t, "my_function", aws.ToString(in.FunctionName))
	assert.Equal(t, "arn:aws:iam::111122223333:role/lambda_basic_execution", aws.ToString(in.Role))
	assert.Equal(t, types.Runtime("python3.12"), in.Runtime)
	assert.Equal(t, "service.handler", aws.ToString(in.Handler))
	assert.Equal(t, []byte("zip"), in.Code.ZipFile)
	assert.Equal(t, int32(30), aws.ToInt32(in.Timeout))
	assert.Equal(t, int32(256), aws.ToInt32(in.MemorySize))
	assert.True(t, in.Publish)
	assert.Equal(t, types.PackageTypeZip, in.PackageType)
	assert.Equal(t, []string{"subnet-cfg"}, in.VpcConfig.SubnetIds)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, in.Environment.Variables)
	assert.Equal(t, map[string]string{"team": "data", "n": "1"}, in.Tags)

	require.Len(t, h.lambda.concurrency, 1)
	assert.Equal(t, int32(4), aws.ToInt32(h.lambda.concurrency[0].ReservedConcurrentExecutions))
}

func TestCreate_AlreadyExists(t *testing.T) {
	h := newHarness(testConfig())
	h.lambda.createErr = &types.ResourceConflictException{Message: aws.String("Function already exist")}

	_, err := h.deployer.Create(context.Background(), Code{ZipFile: []byte("zip")})
	var existsErr *errors.AlreadyExistsError
	require.ErrorAs(t, err, &existsErr)
	assert.Equal(t, "my_function", existsErr.Resource)
	assert.Empty(t, h.lambda.concurrency)
}

func TestCreate_S3AndNoOptionalFields(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentVariables = nil
	cfg.Role = "arn:aws:iam::999:role/custom"
	h := newHarness(cfg)

	_, err := h.deployer.Create(context.Background(), Code{S3Bucket: "bucket", S3Key: "/dist/key.zip"})
	require.NoError(t, err)

	in := h.lambda.created[0]
	assert.Equal(t, "arn:aws:iam::999:role/custom", aws.ToString(in.Role))
	assert.Equal(t, "bucket", aws.ToString(in.Code.S3Bucket))
	assert.Equal(t, "/dist/key.zip", aws.ToString(in.Code.S3Key))
	assert.Nil(t, in.Code.ZipFile)
	assert.Nil(t, in.Environment)
	assert.Nil(t, in.Tags)
	assert.Empty(t, h.lambda.concurrency)
}

func TestCreate_Image(t *testing.T) {
	h := newHarness(testConfig())

	_, err := h.deployer.Create(context.Background(), Code{ImageURI: "repo:tag"})
	require.NoError(t, err)

	in := h.lambda.created[0]
	assert.Equal(t, types.PackageTypeImage, in.PackageType)
	assert.Equal(t, "repo:tag", aws.ToString(in.Code.ImageUri))
	assert.Empty(t, in.Runtime)
	assert.Nil(t, in.Handler)
}

func TestUpdate_Zip(t *testing.T) {
	h := newHarness(testConfig())
	existing := &lambda.GetFunctionOutput{Configuration: &types.FunctionConfiguration{}}

	err := h.deployer.Update(context.Background(), Code{ZipFile: []byte("zip")}, existing, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"UpdateFunctionCode", "Wait", "UpdateFunctionConfiguration", "Wait"}, h.lambda.calls)

	code := h.lambda.codeUpdates[0]
	assert.Equal(t, []byte("zip"), code.ZipFile)
	assert.True(t, code.Publish)

	cfgIn := h.lambda.cfgUpdates[0]
	assert.Equal(t, types.Runtime("python3.12"), cfgIn.Runtime)
	assert.Equal(t, "service.handler", aws.ToString(cfgIn.Handler))
	assert.Equal(t, "desc", aws.ToString(cfgIn.Description))
	assert.Equal(t, []string{"subnet-cfg"}, cfgIn.VpcConfig.SubnetIds)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, cfgIn.Environment.Variables)
}

func TestUpdate_EmptyEnvironmentClearsVariables(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentVariables = map[string]interface{}{}
	h := newHarness(cfg)

	err := h.deployer.Update(context.Background(), Code{ZipFile: []byte("zip")}, &lambda.GetFunctionOutput{}, false)
	require.NoError(t, err)

	env := h.lambda.cfgUpdates[0].Environment
	require.NotNil(t, env)
	assert.Empty(t, env.Variables)
	assert.NotNil(t, env.Variables)
}

func TestUpdate_OmittedEnvironmentIsLeftAlone(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentVariables = nil
	h := newHarness(cfg)

	err := h.deployer.Update(context.Background(), Code{ZipFile: []byte("zip")}, &lambda.GetFunctionOutput{}, false)
	require.NoError(t, err)
	assert.Nil(t, h.lambda.cfgUpdates[0].Environment)
}

func TestUpdate_Image(t *testing.T) {
	h := newHarness(testConfig())

	err := h.deployer.Update(context.Background(), Code{ImageURI: "repo:tag"}, &lambda.GetFunctionOutput{}, false)
	require.NoError(t, err)

	assert.Equal(t, "repo:tag", aws.ToString(h.lambda.codeUpdates[0].ImageUri))
	assert.Empty(t, h.lambda.cfgUpdates[0].Runtime)
	assert.Nil(t, h.lambda.cfgUpdates[0].Handler)
}

func TestUpdate_PreserveVPC(t *testing.T) {
	tests := []struct {
		name        string
		existingVPC *types.VpcConfigResponse
		preserve    bool
		wantSubnets []string
		wantGroups  []string
	}{
		{
			name:        "preserve existing",
			existingVPC: &types.VpcConfigResponse{SubnetIds: []string{"subnet-old"}, SecurityGroupIds: []string{"sg-old"}, VpcId: aws.String("vpc-1")},
			preserve:    true,
			wantSubnets: []string{"subnet-old"},
			wantGroups:  []string{"sg-old"},
		},
		{
			name:        "preserve without existing vpc",
			preserve:    true,
			wantSubnets: []string{"subnet-cfg"},
			wantGroups:  []string{"sg-cfg"},
		},
		{
			name:        "replace existing",
			existingVPC: &types.VpcConfigResponse{SubnetIds: []string{"subnet-old"}},
			wantSubnets: []string{"subnet-cfg"},
			wantGroups:  []string{"sg-cfg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(testConfig())
			existing := &lambda.GetFunctionOutput{Configuration: &types.FunctionConfiguration{VpcConfig: tt.existingVPC}}

			require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, existing, tt.preserve))

			vpc := h.lambda.cfgUpdates[0].VpcConfig
			assert.Equal(t, tt.wantSubnets, vpc.SubnetIds)
			assert.Equal(t, tt.wantGroups, vpc.SecurityGroupIds)
			assert.Contains(t, h.logs.String(), fmt.Sprintf("preserve_vpc=%t", tt.preserve))
		})
	}
}

func TestUpdate_Concurrency(t *testing.T) {
	withReserved := &lambda.GetFunctionOutput{Concurrency: &types.Concurrency{ReservedConcurrentExecutions: aws.Int32(3)}}

	t.Run("put when configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.Concurrency = 7
		h := newHarness(cfg)
		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, withReserved, false))
		require.Len(t, h.lambda.concurrency, 1)
		assert.Equal(t, int32(7), aws.ToInt32(h.lambda.concurrency[0].ReservedConcurrentExecutions))
		assert.Zero(t, h.lambda.concDeleted)
	})

	t.Run("delete when removed from config", func(t *testing.T) {
		h := newHarness(testConfig())
		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, withReserved, false))
		assert.Empty(t, h.lambda.concurrency)
		assert.Equal(t, 1, h.lambda.concDeleted)
	})

	t.Run("nothing when never set", func(t *testing.T) {
		h := newHarness(testConfig())
		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, &lambda.GetFunctionOutput{}, false))
		assert.Empty(t, h.lambda.concurrency)
		assert.Zero(t, h.lambda.concDeleted)
	})
}

func TestUpdate_Tags(t *testing.T) {
	t.Run("replaces changed tags", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tags = map[string]interface{}{"team": "data"}
		h := newHarness(cfg)
		existing := &lambda.GetFunctionOutput{Tags: map[string]string{"team": "web", "old": "x"}}

		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, existing, false))

		require.Len(t, h.lambda.untagged, 1)
		assert.Equal(t, []string{"old", "team"}, h.lambda.untagged[0].TagKeys)
		assert.Equal(t, "arn:fn", aws.ToString(h.lambda.untagged[0].Resource))
		require.Len(t, h.lambda.tagged, 1)
		assert.Equal(t, map[string]string{"team": "data"}, h.lambda.tagged[0].Tags)
	})

	t.Run("tags a function without tags", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tags = map[string]interface{}{"team": "data"}
		h := newHarness(cfg)

		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, &lambda.GetFunctionOutput{}, false))
		assert.Empty(t, h.lambda.untagged)
		assert.Len(t, h.lambda.tagged, 1)
	})

	t.Run("empty tags remove existing ones", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tags = map[string]interface{}{}
		h := newHarness(cfg)
		existing := &lambda.GetFunctionOutput{Tags: map[string]string{"team": "web"}}

		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, existing, false))
		require.Len(t, h.lambda.untagged, 1)
		assert.Equal(t, []string{"team"}, h.lambda.untagged[0].TagKeys)
		assert.Empty(t, h.lambda.tagged)
	})

	t.Run("leaves equal tags", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tags = map[string]interface{}{"team": "data"}
		h := newHarness(cfg)
		existing := &lambda.GetFunctionOutput{Tags: map[string]string{"team": "data"}}

		require.NoError(t, h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, existing, false))
		assert.Empty(t, h.lambda.untagged)
		assert.Empty(t, h.lambda.tagged)
	})
}

func TestUpdate_WaitFailure(t *testing.T) {
	h := newHarness(testConfig())
	h.deployer.wait = func(context.Context, string) error { return fmt.Errorf("timed out") }

	err := h.deployer.Update(context.Background(), Code{ZipFile: []byte("z")}, &lambda.GetFunctionOutput{}, false)
	require.Error(t, err)
	assert.Empty(t, h.lambda.cfgUpdates)
}

func TestUpload(t *testing.T) {
	h := newHarness(testConfig())
	path := writeBundle(t, "hello")

	key, err := h.deployer.Upload(context.Background(), path)
	require.NoError(t, err)

	// md5("hello") = 5d41402abc4b2a76b9719d911017c592
	assert.Equal(t, "/dist5d41402abc4b2a76b9719d911017c592-1700000000.25.zip", key)
	require.Len(t, h.s3.puts, 1)
	assert.Equal(t, "bucket", aws.ToString(h.s3.puts[0].Bucket))
	assert.Equal(t, key, aws.ToString(h.s3.puts[0].Key))
	assert.Equal(t, []byte("hello"), h.s3.body)
	assert.Contains(t, h.out.String(), "Finished uploading my_function to S3 bucket bucket")
}

func TestUpload_LogsBundleSize(t *testing.T) {
	h := newHarness(testConfig())

	_, err := h.deployer.Upload(context.Background(), writeBundle(t, "hello"))
	require.NoError(t, err)

	logs := h.logs.String()
	assert.Contains(t, logs, "Uploading bundle")
	assert.Contains(t, logs, "region=eu-west-3")
	assert.Contains(t, logs, "size=5")
}

func TestUpload_NoBucket(t *testing.T) {
	cfg := testConfig()
	cfg.BucketName = ""
	h := newHarness(cfg)

	_, err := h.deployer.Upload(context.Background(), writeBundle(t, "x"))
	assert.Error(t, err)
	assert.Empty(t, h.s3.puts)
}

func TestCleanupOldVersions(t *testing.T) {
	tests := []struct {
		name        string
		keep        int
		pages       [][]string
		failOn      string
		wantDeleted []string
		wantOutput  string
		wantLog     string
	}{
		{
			name:       "refuses to delete everything",
			keep:       0,
			wantOutput: "Won't delete all versions. Please do this manually",
		},
		{
			name:       "too few versions",
			keep:       5,
			pages:      [][]string{{"$LATEST", "1", "2"}},
			wantOutput: "Nothing to delete. (Too few versions published)",
		},
		{
			name:        "keeps latest and last versions across pages",
			keep:        2,
			pages:       [][]string{{"$LATEST", "1", "2"}, {"3", "4", "5"}},
			wantDeleted: []string{"1", "2", "3"},
			wantLog:     "Deleted 3 old versions",
		},
		{
			name:        "skips undeletable versions",
			keep:        1,
			pages:       [][]string{{"$LATEST", "1", "2", "3"}},
			failOn:      "2",
			wantDeleted: []string{"1"},
			wantOutput:  "Skipping Version 2",
			wantLog:     "Deleted 1 old versions",
		},
		{
			name:  "exactly keep versions",
			keep:  3,
			pages: [][]string{{"$LATEST", "1", "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(testConfig())
			h.lambda.versionPages = tt.pages
			h.lambda.deleteFailOn = tt.failOn

			require.NoError(t, h.deployer.CleanupOldVersions(context.Background(), tt.keep))
			assert.Equal(t, tt.wantDeleted, h.lambda.deleted)
			if tt.wantLog != "" {
				assert.Contains(t, h.logs.String(), tt.wantLog)
			}
			if tt.wantOutput != "" {
				assert.Contains(t, h.out.String(), tt.wantOutput)
			}
		})
	}
}

func TestDeploy_CreatesMissingFunction(t *testing.T) {
	h := newHarness(testConfig())
	bundler := &fakeBundler{path: writeBundle(t, "zip")}
	opts := packager.Options{Requirements: "requirements.txt"}

	path, err := h.deployer.Deploy(context.Background(), bundler, opts, false)
	require.NoError(t, err)

	assert.Equal(t, bundler.path, path)
	assert.Equal(t, opts, bundler.opts)
	require.Len(t, h.lambda.created, 1)
	assert.Equal(t, []byte("zip"), h.lambda.created[0].Code.ZipFile)
	assert.Empty(t, h.lambda.codeUpdates)
}

func TestDeploy_LogsStepDurations(t *testing.T) {
	h := newHarness(testConfig())

	_, err := h.deployer.Deploy(context.Background(), &fakeBundler{path: writeBundle(t, "zip")}, packager.Options{}, false)
	require.NoError(t, err)

	logs := h.logs.String()
	assert.Contains(t, logs, "step=build")
	assert.Contains(t, logs, "step=deploy")
	assert.Contains(t, logs, "duration_ms=")
}

func TestDeploy_UpdatesExistingFunction(t *testing.T) {
	h := newHarness(testConfig())
	h.lambda.function = &lambda.GetFunctionOutput{Configuration: &types.FunctionConfiguration{}}

	_, err := h.deployer.Deploy(context.Background(), &fakeBundler{path: writeBundle(t, "zip")}, packager.Options{}, false)
	require.NoError(t, err)

	assert.Empty(t, h.lambda.created)
	require.Len(t, h.lambda.codeUpdates, 1)
}

func TestDeployS3(t *testing.T) {
	h := newHarness(testConfig())
	h.lambda.function = &lambda.GetFunctionOutput{}

	key, err := h.deployer.DeployS3(context.Background(), &fakeBundler{path: writeBundle(t, "zip")}, packager.Options{}, true)
	require.NoError(t, err)

	require.Len(t, h.s3.puts, 1)
	require.Len(t, h.lambda.codeUpdates, 1)
	assert.Equal(t, "bucket", aws.ToString(h.lambda.codeUpdates[0].S3Bucket))
	assert.Equal(t, key, aws.ToString(h.lambda.codeUpdates[0].S3Key))
}

func TestUploadBundle(t *testing.T) {
	h := newHarness(testConfig())

	key, err := h.deployer.UploadBundle(context.Background(), &fakeBundler{path: writeBundle(t, "zip")}, packager.Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, key)
	assert.Empty(t, h.lambda.calls)
}

func TestDeployImage(t *testing.T) {
	cfg := testConfig()
	cfg.AWSAccountID = "123456789012"
	cfg.ECRRepository = "repo"
	h := newHarness(cfg)
	h.lambda.function = &lambda.GetFunctionOutput{}

	ref, err := h.deployer.DeployImage(context.Background(), "", "v1", false)
	require.NoError(t, err)

	assert.Equal(t, "123456789012.dkr.ecr.us-east-1.amazonaws.com/repo:v1", ref)
	assert.Equal(t, ref, aws.ToString(h.lambda.codeUpdates[0].ImageUri))
	assert.Contains(t, h.out.String(), "Deploying docker image with URI: "+ref)
}

func TestDeployImage_NoURI(t *testing.T) {
	h := newHarness(testConfig())

	_, err := h.deployer.DeployImage(context.Background(), "", "", false)
	assert.Error(t, err)
	assert.Empty(t, h.lambda.calls)
}

func TestInfo(t *testing.T) {
	h := newHarness(testConfig())
	h.lambda.function = &lambda.GetFunctionOutput{
		Configuration: &types.FunctionConfiguration{
			FunctionArn: aws.String("arn:fn"),
			Runtime:     types.RuntimePython312,
			Handler:     aws.String("service.handler"),
			MemorySize:  aws.Int32(256),
			Timeout:     aws.Int32(30),
			State:       types.StateActive,
			Environment: &types.EnvironmentResponse{Variables: map[string]string{"STAGE": "prod"}},
		},
		Concurrency: &types.Concurrency{ReservedConcurrentExecutions: aws.Int32(2)},
		Tags:        map[string]string{"team": "data"},
	}
	h.lambda.versionPages = [][]string{{"$LATEST", "1", "2"}}

	info, err := h.deployer.Info(context.Background())
	require.NoError(t, err)

	assert.True(t, info.Exists)
	assert.Equal(t, "arn:fn", info.ARN)
	assert.Equal(t, "python3.12", info.Runtime)
	assert.Equal(t, "Active", info.State)
	assert.Equal(t, int32(256), info.MemorySize)
	assert.Equal(t, int32(2), info.Concurrency)
	assert.Equal(t, 2, info.Versions)
	assert.Equal(t, "2", info.LatestVersion)
	assert.Equal(t, map[string]string{"STAGE": "prod"}, info.Environment)
}

func TestInfo_Missing(t *testing.T) {
	h := newHarness(testConfig())

	info, err := h.deployer.Info(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, "my_function", info.Name)
}

func TestZipCode(t *testing.T) {
	code, err := ZipCode(writeBundle(t, "data"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), code.ZipFile)
	assert.False(t, code.IsImage())

	_, err = ZipCode(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}
