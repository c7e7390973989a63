// Package packager builds the zip bundle deployed to Lambda: pip dependencies
// installed into a staging directory, plus the project files.
package packager

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/u-root/u-root/pkg/cp"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
	"github.com/NikitaCOEUR/pylambda/internal/runner"
	"github.com/NikitaCOEUR/pylambda/internal/trace"
)

const timestampLayout = "2006-01-02-150405"

// bundleCopy copies project files into the staging directory, keeping their
// modes. Anything but regular files and directories is skipped.
var bundleCopy = cp.Options{
	PreCallback: func(_, _ string, fi os.FileInfo) error {
		if fi.IsDir() || fi.Mode().IsRegular() {
			return nil
		}
		return cp.ErrSkip
	},
}

// packages never shipped in the bundle
var blacklist = []string{"-i", "#", "Python==", "python-lambda=="}

// Options controls dependency resolution for a build
type Options struct {
	// Requirements is a requirements file. When empty, pip freeze is used.
	Requirements string
	// LocalPackages are extra pip install targets (paths or specifiers)
	LocalPackages []string
}

// Packager builds bundles for one project
type Packager struct {
	cfg    *config.Config
	src    string
	runner runner.Runner
	log    *logger.Logger
	out    io.Writer
	python string
	now    func() time.Time
}

// New creates a packager for the project in src
func New(cfg *config.Config, src string, r runner.Runner, log *logger.Logger, out io.Writer) *Packager {
	return &Packager{
		cfg:    cfg,
		src:    src,
		runner: r,
		log:    log.With("packager"),
		out:    out,
		python: runner.Python(),
		now:    time.Now,
	}
}

// OutputName returns the bundle file name for the current time
func (p *Packager) OutputName() string {
	name := fmt.Sprintf("%s-%s", p.now().Format(timestampLayout), p.cfg.FunctionName)
	if !strings.HasSuffix(name, ".zip") {
		name += ".zip"
	}
	return name
}

// Build assembles the bundle into the dist directory and returns its path
func (p *Packager) Build(ctx context.Context, opts Options) (string, error) {
	defer trace.Region(ctx, "packager.Build")()

	dist := filepath.Join(p.src, p.cfg.DistDirectory)
	if err := os.MkdirAll(dist, 0755); err != nil {
		return "", errors.NewPackagingError(dist, "failed to create dist directory", err)
	}
	output := filepath.Join(dist, p.OutputName())

	staging, err := os.MkdirTemp("", "pylambda-")
	if err != nil {
		return "", errors.NewPackagingError(staging, "failed to create staging directory", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			p.log.Warn().Str("path", staging).Err(err).Msg("Failed to remove staging directory")
		}
	}()

	endInstall := trace.Region(ctx, "packager.install")
	err = p.installDependencies(ctx, staging, opts)
	endInstall()
	if err != nil {
		return "", err
	}

	if err := fixZope(staging); err != nil {
		return "", err
	}

	files, dirs, err := p.collect()
	if err != nil {
		return "", err
	}
	for _, f := range files {
		fmt.Fprintf(p.out, "Bundling: %s\n", f)
		if err := bundleCopy.Copy(filepath.Join(p.src, f), filepath.Join(staging, f)); err != nil {
			return "", errors.NewPackagingError(f, "failed to copy file", err)
		}
	}
	for _, d := range dirs {
		fmt.Fprintf(p.out, "Bundling directory: %s\n", d)
		if err := bundleCopy.CopyTree(filepath.Join(p.src, d), filepath.Join(staging, d)); err != nil {
			return "", errors.NewPackagingError(d, "failed to copy directory", err)
		}
	}

	if err := Archive(staging, output); err != nil {
		return "", err
	}
	p.log.Info().Str("bundle", output).Msg("Bundle created")
	return output, nil
}

func (p *Packager) installDependencies(ctx context.Context, staging string, opts Options) error {
	packages, err := p.gather(ctx, opts.Requirements)
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		fmt.Fprintln(p.out, "No dependency packages installed!")
	}
	packages = append(packages, opts.LocalPackages...)

	for _, pkg := range FilterPackages(packages) {
		fmt.Fprintf(p.out, "Installing %s\n", pkg)
		err := p.runner.Run(ctx, runner.Command{
			Name:   p.python,
			Args:   []string{"-m", "pip", "install", pkg, "-t", staging, "--ignore-installed"},
			Stdout: p.out,
		})
		if err != nil {
			return errors.NewPackagingError(pkg, "failed to install package", err)
		}
	}

	if p.log.IsDebug() {
		entries, _ := os.ReadDir(staging)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		p.log.Debug().Strs("contents", names).Msg("Install directory contents")
	}
	return nil
}

// gather lists the requirement lines from the requirements file, or from
// pip freeze when none is given. A missing requirements file yields nothing.
func (p *Packager) gather(ctx context.Context, requirements string) ([]string, error) {
	if requirements == "" {
		fmt.Fprintln(p.out, "Gathering pip packages")
		out, err := p.runner.Output(ctx, runner.Command{Name: p.python, Args: []string{"-m", "pip", "freeze"}})
		if err != nil {
			return nil, errors.NewPackagingError("pip freeze", "failed to list installed packages", err)
		}
		return splitLines(out), nil
	}

	data, err := os.ReadFile(requirements)
	if os.IsNotExist(err) {
		p.log.Warn().Str("requirements", requirements).Msg("Requirements file not found")
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPackagingError(requirements, "failed to read requirements", err)
	}
	fmt.Fprintln(p.out, "Gathering requirement packages")
	return splitLines(data), nil
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// FilterPackages drops blank lines, comments, index options and the packages
// that must not be bundled, and strips editable markers.
func FilterPackages(packages []string) []string {
	var filtered []string
	for _, pkg := range packages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" || blacklisted(pkg) {
			continue
		}
		filtered = append(filtered, strings.TrimPrefix(pkg, "-e "))
	}
	return filtered
}

func blacklisted(pkg string) bool {
	for _, prefix := range blacklist {
		if strings.HasPrefix(pkg, prefix) {
			return true
		}
	}
	return false
}

// fixZope makes namespace-less zope installs importable
func fixZope(staging string) error {
	zope := filepath.Join(staging, "zope")
	if info, err := os.Stat(zope); err != nil || !info.IsDir() {
		return nil
	}
	initFile := filepath.Join(zope, "__init__.py")
	f, err := os.OpenFile(initFile, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.NewPackagingError(initFile, "failed to fix zope package", err)
	}
	return f.Close()
}

// collect returns the top-level files and the source directories to bundle,
// relative to the project directory
func (p *Packager) collect() ([]string, []string, error) {
	entries, err := os.ReadDir(p.src)
	if err != nil {
		return nil, nil, errors.NewPackagingError(p.src, "failed to read project directory", err)
	}

	sourceDirs := make(map[string]bool)
	for _, d := range p.cfg.SourceDirectories() {
		sourceDirs[d] = true
	}
	configName := filepath.Base(p.cfg.Path)

	var files, dirs []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir():
			if sourceDirs[name] {
				dirs = append(dirs, name)
			}
		case e.Type().IsRegular():
			if name == ".DS_Store" || name == configName || p.excluded(name) {
				continue
			}
			files = append(files, name)
		}
	}
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs, nil
}

func (p *Packager) excluded(name string) bool {
	for _, pattern := range p.cfg.Build.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
