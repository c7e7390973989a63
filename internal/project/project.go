// Package project scaffolds new pylambda projects.
package project

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
	"github.com/NikitaCOEUR/pylambda/internal/logger"
)

//go:embed templates/*.tmpl
var templates embed.FS

// EventFile is skipped by minimal projects
const EventFile = "event.json"

// Options controls project scaffolding
type Options struct {
	// FunctionName defaults to the directory name
	FunctionName string
	Description  string
	Runtime      string
	// Minimal skips the sample event
	Minimal bool
}

type templateData struct {
	FunctionName string
	Description  string
	Runtime      string
}

// Files returns the names of the files Init writes
func Files(minimal bool) ([]string, error) {
	entries, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		if minimal && name == EventFile {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Init writes the project template into dir. Existing files are kept.
// Returns the files that were created.
func Init(dir string, opts Options, log *logger.Logger, out io.Writer) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewExecutionError("init", "failed to create project directory", err)
	}

	data := templateData{
		FunctionName: opts.FunctionName,
		Description:  opts.Description,
		Runtime:      opts.Runtime,
	}
	if data.FunctionName == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.NewExecutionError("init", "failed to resolve project directory", err)
		}
		data.FunctionName = FunctionName(filepath.Base(abs))
	}
	if data.Description == "" {
		data.Description = fmt.Sprintf("%s lambda function", data.FunctionName)
	}
	if data.Runtime == "" {
		data.Runtime = config.DefaultRuntime
	}

	names, err := Files(opts.Minimal)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, name := range names {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			log.Warn().Str("file", dest).Msg("File already exists, skipping")
			continue
		}

		content, err := render(name, data)
		if err != nil {
			return created, err
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return created, errors.NewExecutionError("init", fmt.Sprintf("failed to write %s", dest), err)
		}
		fmt.Fprintf(out, "Created %s\n", dest)
		created = append(created, dest)
	}
	return created, nil
}

func render(name string, data templateData) ([]byte, error) {
	raw, err := templates.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// FunctionName turns a directory name into a valid Lambda function name
func FunctionName(dir string) string {
	var b strings.Builder
	for _, r := range dir {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || name == "_" {
		return "my_lambda_function"
	}
	return name
}
