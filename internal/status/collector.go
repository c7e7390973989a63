// Package status collects and renders the state of a pylambda project and its
// deployed function.
package status

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/deploy"
	"github.com/NikitaCOEUR/pylambda/pkg/version"
)

// maxBundles caps the bundles listed by info
const maxBundles = 5

// FunctionSource looks up the deployed function
type FunctionSource interface {
	Info(ctx context.Context) (*deploy.FunctionInfo, error)
}

// Collect gathers the project state. A nil source skips the AWS lookup;
// lookup failures are recorded rather than returned.
func Collect(ctx context.Context, cfg *config.Config, src string, source FunctionSource) *Data {
	data := &Data{
		ProjectDir: src,
		ConfigPath: cfg.Path,
		Version:    version.Version,
		Config:     cfg,
		Validation: config.ValidateConfig(cfg),
		Bundles:    collectBundles(filepath.Join(src, cfg.DistDirectory)),
	}
	if abs, err := filepath.Abs(src); err == nil {
		data.ProjectDir = abs
	}

	if source != nil {
		info, err := source.Info(ctx)
		if err != nil {
			data.FunctionError = err.Error()
		} else {
			data.Function = info
		}
	}
	return data
}

// collectBundles lists zip bundles, newest first
func collectBundles(dist string) []BundleInfo {
	entries, err := os.ReadDir(dist)
	if err != nil {
		return nil
	}

	var bundles []BundleInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		bundles = append(bundles, BundleInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	// Names start with a timestamp, so name order is build order
	sort.Slice(bundles, func(i, j int) bool {
		return bundles[i].Name > bundles[j].Name
	})
	if len(bundles) > maxBundles {
		bundles = bundles[:maxBundles]
	}
	return bundles
}
