// Package config handles loading and parsing of pylambda project configuration files.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/NikitaCOEUR/pylambda/internal/errors"
)

const (
	// DefaultConfigName is the config file looked up in the project directory
	DefaultConfigName = "config.yaml"

	// EnvPrefix prefixes environment variables that override config keys
	EnvPrefix = "PYLAMBDA_"

	DefaultRole          = "lambda_basic_execution"
	DefaultRuntime       = "python3.12"
	DefaultTimeout       = 15
	DefaultMemorySize    = 512
	DefaultDistDirectory = "dist"
	DefaultS3KeyPrefix   = "/dist"

	// BuildPathKey is the image_build_variables entry holding the build context
	BuildPathKey = "build_path"
)

// arnPartitions maps regions outside the standard partition
var arnPartitions = map[string]string{
	"cn-north-1":     "aws-cn",
	"cn-northwest-1": "aws-cn",
	"us-gov-west-1":  "aws-us-gov",
}

var envRefPattern = regexp.MustCompile(`^\$\{(\w+)\}$`)

// BuildConfig controls which project files end up in the bundle
type BuildConfig struct {
	SourceDirectories string   `koanf:"source_directories"`
	Exclude           []string `koanf:"exclude"`
}

// Config represents a pylambda project configuration
type Config struct {
	Region       string `koanf:"region"`
	FunctionName string `koanf:"function_name"`
	Handler      string `koanf:"handler"`
	Role         string `koanf:"role"`
	Description  string `koanf:"description"`
	Runtime      string `koanf:"runtime"`
	Timeout      int    `koanf:"timeout"`
	MemorySize   int    `koanf:"memory_size"`
	Concurrency  int    `koanf:"concurrency"`

	Profile            string `koanf:"profile"`
	AWSAccessKeyID     string `koanf:"aws_access_key_id"`
	AWSSecretAccessKey string `koanf:"aws_secret_access_key"`
	AWSAccountID       string `koanf:"aws_account_id"`

	EnvironmentVariables map[string]interface{} `koanf:"environment_variables"`
	Tags                 map[string]interface{} `koanf:"tags"`
	SubnetIDs            []string               `koanf:"subnet_ids"`
	SecurityGroupIDs     []string               `koanf:"security_group_ids"`

	BucketName    string      `koanf:"bucket_name"`
	S3KeyPrefix   string      `koanf:"s3_key_prefix"`
	DistDirectory string      `koanf:"dist_directory"`
	Build         BuildConfig `koanf:"build"`

	ImageBuildVariables map[string]interface{} `koanf:"image_build_variables"`
	ECRRepository       string                 `koanf:"ecr_repository"`
	LambdaImageURI      string                 `koanf:"lambda_image_uri"`
	LambdaImageTag      string                 `koanf:"lambda_image_tag"`

	// Path is the file this config was loaded from
	Path string `koanf:"-"`
}

func defaults() *Config {
	return &Config{
		Role:                DefaultRole,
		Runtime:             DefaultRuntime,
		Timeout:             DefaultTimeout,
		MemorySize:          DefaultMemorySize,
		S3KeyPrefix:         DefaultS3KeyPrefix,
		DistDirectory:       DefaultDistDirectory,
		ImageBuildVariables: make(map[string]interface{}),
	}
}

// Dir returns the directory holding the config file
func (c *Config) Dir() string {
	return filepath.Dir(c.Path)
}

// EnvironmentValue resolves a config value of the form ${NAME} from the
// process environment. Any other value is returned as its string form.
func EnvironmentValue(value interface{}) string {
	if value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprint(value)
	}
	if m := envRefPattern.FindStringSubmatch(s); m != nil {
		return os.Getenv(m[1])
	}
	return s
}

// ResolvedEnvironment returns environment_variables with ${NAME} references resolved
func (c *Config) ResolvedEnvironment() map[string]string {
	resolved := make(map[string]string, len(c.EnvironmentVariables))
	for k, v := range c.EnvironmentVariables {
		resolved[k] = EnvironmentValue(v)
	}
	return resolved
}

// HasEnvironment reports whether environment_variables was set. An empty
// map is set and clears the function environment on deploy.
func (c *Config) HasEnvironment() bool {
	return c.EnvironmentVariables != nil
}

// StringTags returns the configured tags with stringified values
func (c *Config) StringTags() map[string]string {
	tags := make(map[string]string, len(c.Tags))
	for k, v := range c.Tags {
		tags[k] = fmt.Sprint(v)
	}
	return tags
}

// HasTags reports whether tags were configured, possibly empty
func (c *Config) HasTags() bool {
	return c.Tags != nil
}

// ReservedConcurrency returns the reserved concurrent executions, never negative
func (c *Config) ReservedConcurrency() int {
	if c.Concurrency < 0 {
		return 0
	}
	return c.Concurrency
}

// ECRURI builds the ECR repository URI, with an optional tag
func (c *Config) ECRURI(tag string) (string, error) {
	if c.AWSAccountID == "" || c.Region == "" || c.ECRRepository == "" {
		return "", errors.NewValidationError("ecr_repository",
			"aws_account_id, region and ecr_repository must be set in the config file", nil)
	}
	uri := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", c.AWSAccountID, c.Region, c.ECRRepository)
	if tag != "" {
		uri += ":" + tag
	}
	return uri, nil
}

// ImageURI resolves the image to deploy: explicit uri, then lambda_image_uri,
// then the ECR URI built with tag (or lambda_image_tag).
func (c *Config) ImageURI(uri, tag string) (string, error) {
	if uri != "" {
		return uri, nil
	}
	if c.LambdaImageURI != "" {
		return c.LambdaImageURI, nil
	}
	if tag == "" {
		tag = c.LambdaImageTag
	}
	return c.ECRURI(tag)
}

// HasRoleARN reports whether role is already a full ARN
func (c *Config) HasRoleARN() bool {
	return strings.HasPrefix(c.Role, "arn:")
}

// RoleARN returns the execution role ARN for the given account
func (c *Config) RoleARN(accountID string) string {
	if c.HasRoleARN() {
		return c.Role
	}
	role := c.Role
	if role == "" {
		role = DefaultRole
	}
	partition, ok := arnPartitions[c.Region]
	if !ok {
		partition = "aws"
	}
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", partition, accountID, role)
}

// SourceDirectories returns the directories listed in build.source_directories
func (c *Config) SourceDirectories() []string {
	var dirs []string
	for _, d := range strings.Split(c.Build.SourceDirectories, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// HandlerParts splits handler into module and function names
func (c *Config) HandlerParts() (string, string, error) {
	parts := strings.Split(c.Handler, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.NewValidationError("handler",
			fmt.Sprintf("handler %q must have the form <module>.<function>", c.Handler), nil)
	}
	return parts[0], parts[1], nil
}

// HandlerFile returns the python file implementing the handler
func (c *Config) HandlerFile() (string, error) {
	module, _, err := c.HandlerParts()
	if err != nil {
		return "", err
	}
	return module + ".py", nil
}

// BuildPath returns the docker build context from image_build_variables
func (c *Config) BuildPath() string {
	v, ok := c.ImageBuildVariables[BuildPathKey]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// BuildFlags returns image_build_variables as key=value flags sorted by key,
// excluding build_path
func (c *Config) BuildFlags() []string {
	keys := make([]string, 0, len(c.ImageBuildVariables))
	for k := range c.ImageBuildVariables {
		if k == BuildPathKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, fmt.Sprintf("%s=%v", k, c.ImageBuildVariables[k]))
	}
	return flags
}

// LocalImage returns the image tag passed to docker build (--tag)
func (c *Config) LocalImage() string {
	v, ok := c.ImageBuildVariables["--tag"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Loader handles loading and parsing configuration files
type Loader struct {
	profile string
}

// New creates a new config loader
func New() *Loader {
	return &Loader{}
}

// WithProfile sets a profile that takes precedence over AWS_PROFILE and the file
func (l *Loader) WithProfile(profile string) *Loader {
	l.profile = profile
	return l
}

// LoadProject loads the named config file from the project directory
func (l *Loader) LoadProject(src, name string) (*Config, error) {
	if name == "" {
		name = DefaultConfigName
	}
	if filepath.IsAbs(name) {
		return l.Load(name)
	}
	return l.Load(filepath.Join(src, name))
}

// Load reads, renders and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigurationError(path, "failed to read config", err)
	}

	rendered, err := Render(path, content)
	if err != nil {
		return nil, err
	}

	parser, err := parserFor(path)
	if err != nil {
		return nil, errors.NewConfigurationError(path, "unsupported config format", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(rendered), parser); err != nil {
		return nil, errors.NewConfigurationError(path, "failed to load config", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.NewConfigurationError(path, "failed to load environment overrides", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.NewConfigurationError(path, "failed to unmarshal config", err)
	}
	cfg.Path = path

	// Present but empty (or null) keys still count as configured
	if k.Exists("environment_variables") && cfg.EnvironmentVariables == nil {
		cfg.EnvironmentVariables = make(map[string]interface{})
	}
	if k.Exists("tags") && cfg.Tags == nil {
		cfg.Tags = make(map[string]interface{})
	}
	// Account ids written as numbers lose their leading zeros
	if n, err := strconv.ParseUint(cfg.AWSAccountID, 10, 64); err == nil {
		cfg.AWSAccountID = fmt.Sprintf("%012d", n)
	}

	l.applyOverrides(cfg)
	return cfg, nil
}

// applyOverrides applies the profile precedence and the legacy deployment variables
func (l *Loader) applyOverrides(cfg *Config) {
	if l.profile != "" {
		cfg.Profile = l.profile
	} else if p, ok := os.LookupEnv("AWS_PROFILE"); ok {
		cfg.Profile = p
	}

	if bucket := os.Getenv("S3_BUCKET_NAME"); bucket != "" {
		cfg.BucketName = bucket
	}
	if name := os.Getenv("LAMBDA_FUNCTION_NAME"); name != "" {
		cfg.FunctionName = name
	}
}

// envKey maps PYLAMBDA_MEMORY_SIZE to memory_size and PYLAMBDA_BUILD__EXCLUDE to build.exclude
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// templateData is exposed to config templates
type templateData struct {
	Dir  string
	Name string
}

// Render expands the config file as a Go template with sprig functions.
// Files without template actions are returned unchanged.
func Render(path string, content []byte) ([]byte, error) {
	if !bytes.Contains(content, []byte("{{")) {
		return content, nil
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(string(content))
	if err != nil {
		return nil, errors.NewConfigurationError(path, "could not parse config template", err)
	}

	dir, _ := filepath.Abs(filepath.Dir(path))
	var out bytes.Buffer
	if err := tmpl.Execute(&out, templateData{Dir: dir, Name: filepath.Base(dir)}); err != nil {
		return nil, errors.NewConfigurationError(path, "could not render config template", err)
	}
	return out.Bytes(), nil
}
