package status

import (
	"time"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/deploy"
)

// Data contains all the information displayed by info
type Data struct {
	// Header
	ProjectDir string
	ConfigPath string
	Version    string

	// Local project
	Config     *config.Config
	Validation *config.ValidationResult
	Bundles    []BundleInfo

	// Deployed function
	Function      *deploy.FunctionInfo
	FunctionError string
}

// BundleInfo describes a built zip bundle in the dist directory
type BundleInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// PackageMode returns how the project deploys: image or zip
func (d *Data) PackageMode() string {
	if d.Config == nil {
		return ""
	}
	if d.Config.LambdaImageURI != "" || d.Config.ECRRepository != "" {
		return "image"
	}
	return "zip"
}
