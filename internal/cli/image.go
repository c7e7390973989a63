package cli

import (
	"context"
	"fmt"

	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/image"
)

// BuildImage builds the container image with docker buildx
func BuildImage(ctx context.Context, params Globals) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	return image.NewManager(cfg, params.dir(), image.Options{
		Runner: newRunner(log),
		Log:    log,
		Out:    params.output(),
	}).Build(ctx)
}

// TagImageParams contains parameters for the tag-image command
type TagImageParams struct {
	Globals
	LocalImage string
	ImageTag   string
}

// TagImage tags a local image with the ECR repository URI
func TagImage(ctx context.Context, params TagImageParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	docker, err := newDocker()
	if err != nil {
		return errors.NewExecutionError("docker", "failed to connect to docker", err)
	}
	defer docker.Close()

	ref, err := image.NewManager(cfg, params.dir(), image.Options{
		Docker: docker,
		Log:    log,
		Out:    params.output(),
	}).Tag(ctx, params.LocalImage, params.ImageTag)
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Tagged %s\n", ref)
	return nil
}

// PushImageParams contains parameters for the push-image command
type PushImageParams struct {
	Globals
	ImageURI string
	ImageTag string
}

// PushImage pushes the image to its registry
func PushImage(ctx context.Context, params PushImageParams) error {
	cfg, log, err := params.setup()
	if err != nil {
		return err
	}
	clients, err := params.clients(ctx, cfg)
	if err != nil {
		return err
	}
	docker, err := newDocker()
	if err != nil {
		return errors.NewExecutionError("docker", "failed to connect to docker", err)
	}
	defer docker.Close()

	ref, err := image.NewManager(cfg, params.dir(), image.Options{
		Docker: docker,
		ECR:    clients.ECR,
		Log:    log,
		Out:    params.output(),
	}).Push(ctx, params.ImageURI, params.ImageTag)
	if err != nil {
		return err
	}
	fmt.Fprintf(params.output(), "Pushed %s\n", ref)
	return nil
}
