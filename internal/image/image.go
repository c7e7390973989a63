// Package image builds, tags and pushes the container images deployed as
// Lambda functions.
package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/mattn/go-isatty"

	"github.com/NikitaCOEUR/pylambda/internal/awsclient"
	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/runner"
)

// DockerAPI is the subset of the Docker Engine client used for images
type DockerAPI interface {
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	Close() error
}

// NewDockerClient connects to the daemon configured by the environment
func NewDockerClient() (DockerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.NewExecutionError("docker", "failed to create docker client", err)
	}
	return cli, nil
}

// Manager runs image operations for one project
type Manager struct {
	cfg    *config.Config
	src    string
	runner runner.Runner
	docker DockerAPI
	ecr    awsclient.ECRAPI
	log    *logger.Logger
	out    io.Writer
}

// Options wires the external dependencies of a Manager. Only the ones needed
// by the called operation must be set.
type Options struct {
	Runner runner.Runner
	Docker DockerAPI
	ECR    awsclient.ECRAPI
	Log    *logger.Logger
	Out    io.Writer
}

// NewManager creates an image manager for the project in src
func NewManager(cfg *config.Config, src string, opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		cfg:    cfg,
		src:    src,
		runner: opts.Runner,
		docker: opts.Docker,
		ecr:    opts.ECR,
		log:    log.With("image"),
		out:    out,
	}
}

// BuildCommand returns the docker buildx invocation for the config.
// Provenance attestations are always disabled since Lambda rejects image indexes.
func BuildCommand(cfg *config.Config) (runner.Command, error) {
	buildPath := cfg.BuildPath()
	if buildPath == "" {
		return runner.Command{}, errors.NewValidationError("image_build_variables",
			"image_build_variables.build_path must be set in the config file", nil)
	}

	vars := make(map[string]interface{}, len(cfg.ImageBuildVariables)+1)
	for k, v := range cfg.ImageBuildVariables {
		vars[k] = v
	}
	vars["--provenance"] = "false"
	flags := (&config.Config{ImageBuildVariables: vars}).BuildFlags()

	args := append([]string{"buildx", "build"}, flags...)
	args = append(args, buildPath)
	return runner.Command{Name: "docker", Args: args}, nil
}

// Build runs docker buildx build from the project directory
func (m *Manager) Build(ctx context.Context) error {
	cmd, err := BuildCommand(m.cfg)
	if err != nil {
		return err
	}
	cmd.Dir = m.src
	cmd.Stdout = m.out
	fmt.Fprintf(m.out, "Building docker image with command: %s\n", cmd)
	return m.runner.Run(ctx, cmd)
}

// Tag tags the local image with the ECR URI and returns the new reference.
// localImage defaults to the --tag build variable, tag to lambda_image_tag.
func (m *Manager) Tag(ctx context.Context, localImage, tag string) (string, error) {
	if localImage == "" {
		localImage = m.cfg.LocalImage()
	}
	if localImage == "" {
		return "", errors.NewValidationError("local_image",
			"no local image given and image_build_variables.--tag is not set", nil)
	}
	if tag == "" {
		tag = m.cfg.LambdaImageTag
	}
	target, err := m.cfg.ECRURI(tag)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(m.out, "Tagging image %s as %s\n", localImage, target)
	if err := m.docker.ImageTag(ctx, localImage, target); err != nil {
		return "", errors.NewExecutionError("docker tag", fmt.Sprintf("failed to tag %s", localImage), err)
	}
	return target, nil
}

// Push pushes the image to its registry and returns the pushed reference.
// ECR registries are authenticated with a fresh authorization token.
func (m *Manager) Push(ctx context.Context, uri, tag string) (string, error) {
	ref, err := m.cfg.ImageURI(uri, tag)
	if err != nil {
		return "", err
	}

	auth := ""
	if IsECR(ref) {
		if auth, err = m.RegistryAuth(ctx); err != nil {
			return "", err
		}
	}

	fmt.Fprintf(m.out, "Pushing image %s\n", ref)
	stream, err := m.docker.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return "", errors.NewExecutionError("docker push", fmt.Sprintf("failed to push %s", ref), err)
	}
	defer stream.Close()

	fd, isTerm := terminal(m.out)
	if err := jsonmessage.DisplayJSONMessagesStream(stream, m.out, fd, isTerm, nil); err != nil {
		return "", errors.NewExecutionError("docker push", fmt.Sprintf("failed to push %s", ref), err)
	}
	return ref, nil
}

// RegistryAuth returns the encoded X-Registry-Auth header for the ECR registry
func (m *Manager) RegistryAuth(ctx context.Context) (string, error) {
	out, err := m.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", errors.NewAWSError("GetAuthorizationToken", "failed to get ECR authorization token", err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", errors.NewAWSError("GetAuthorizationToken", "ECR returned no authorization data", nil)
	}

	data := out.AuthorizationData[0]
	username, password, err := DecodeToken(*data.AuthorizationToken)
	if err != nil {
		return "", err
	}
	server := ""
	if data.ProxyEndpoint != nil {
		server = *data.ProxyEndpoint
	}

	m.log.Debug().Str("registry", server).Msg("Obtained ECR credentials")
	return registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      username,
		Password:      password,
		ServerAddress: server,
	})
}

// DecodeToken splits a base64 ECR token into username and password
func DecodeToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", errors.NewAWSError("GetAuthorizationToken", "invalid ECR authorization token", err)
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errors.NewAWSError("GetAuthorizationToken", "malformed ECR authorization token", nil)
	}
	return username, password, nil
}

// IsECR reports whether the image reference points at an ECR registry
func IsECR(ref string) bool {
	host, _, _ := strings.Cut(ref, "/")
	return strings.Contains(host, ".dkr.ecr.")
}

func terminal(w io.Writer) (uintptr, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	return f.Fd(), isatty.IsTerminal(f.Fd())
}
