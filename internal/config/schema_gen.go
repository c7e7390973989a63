//go:build ignore

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaConfig mirrors config.Config with schema annotations
type SchemaConfig struct {
	Region       string `json:"region,omitempty" jsonschema:"description=AWS region of the function"`
	FunctionName string `json:"function_name,omitempty" jsonschema:"minLength=1,description=Lambda function name"`
	Handler      string `json:"handler,omitempty" jsonschema:"pattern=^[A-Za-z_][A-Za-z0-9_]*\\.[A-Za-z_][A-Za-z0-9_]*$,description=Handler in the form module.function"`
	Role         string `json:"role,omitempty" jsonschema:"description=Execution role name or ARN,default=lambda_basic_execution"`
	Description  string `json:"description,omitempty" jsonschema:"description=Function description"`
	Runtime      string `json:"runtime,omitempty" jsonschema:"description=Lambda runtime identifier,default=python3.12"`
	Timeout      int    `json:"timeout,omitempty" jsonschema:"minimum=1,maximum=900,description=Timeout in seconds,default=15"`
	MemorySize   int    `json:"memory_size,omitempty" jsonschema:"minimum=128,maximum=10240,description=Memory in MB,default=512"`
	Concurrency  int    `json:"concurrency,omitempty" jsonschema:"minimum=0,description=Reserved concurrent executions (0 removes the reservation)"`

	Profile            string     `json:"profile,omitempty" jsonschema:"description=Shared credentials profile"`
	AWSAccessKeyID     string     `json:"aws_access_key_id,omitempty" jsonschema:"description=Static access key id"`
	AWSSecretAccessKey string     `json:"aws_secret_access_key,omitempty" jsonschema:"description=Static secret access key"`
	AWSAccountID       *AccountID `json:"aws_account_id,omitempty" jsonschema:"description=Account id used to build ECR URIs"`

	EnvironmentVariables map[string]ScalarValue `json:"environment_variables,omitempty" jsonschema:"description=Function environment; values of the form ${NAME} are read from the local environment"`
	Tags                 map[string]ScalarValue `json:"tags,omitempty" jsonschema:"description=Resource tags"`
	SubnetIDs            []string               `json:"subnet_ids,omitempty" jsonschema:"description=VPC subnet ids"`
	SecurityGroupIDs     []string               `json:"security_group_ids,omitempty" jsonschema:"description=VPC security group ids"`

	BucketName    string       `json:"bucket_name,omitempty" jsonschema:"description=S3 bucket for upload and deploy-s3"`
	S3KeyPrefix   string       `json:"s3_key_prefix,omitempty" jsonschema:"description=Prefix of uploaded bundle keys,default=/dist"`
	DistDirectory string       `json:"dist_directory,omitempty" jsonschema:"description=Output directory for bundles,default=dist"`
	Build         *BuildConfig `json:"build,omitempty" jsonschema:"description=Bundle contents"`

	ImageBuildVariables map[string]ScalarValue `json:"image_build_variables,omitempty" jsonschema:"description=Flags passed to docker buildx build as key=value"`
	ECRRepository       string                 `json:"ecr_repository,omitempty" jsonschema:"description=ECR repository name"`
	LambdaImageURI      string                 `json:"lambda_image_uri,omitempty" jsonschema:"description=Full image URI to deploy"`
	LambdaImageTag      string                 `json:"lambda_image_tag,omitempty" jsonschema:"description=Tag appended to the ECR URI"`
}

// BuildConfig mirrors config.BuildConfig
type BuildConfig struct {
	SourceDirectories string   `json:"source_directories,omitempty" jsonschema:"description=Comma separated directories bundled recursively"`
	Exclude           []string `json:"exclude,omitempty" jsonschema:"description=Glob patterns of top-level files left out of the bundle"`
}

// AccountID is a 12 digit account id written as a number or a string
type AccountID struct{}

// JSONSchema implements custom schema generation for AccountID
func (AccountID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: json.Number("0"), Maximum: json.Number("999999999999")},
			{Type: "string", Pattern: "^[0-9]{12}$"},
		},
	}
}

// ScalarValue is a string, number or boolean
type ScalarValue struct{}

// JSONSchema implements custom schema generation for ScalarValue
func (ScalarValue) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "number"},
			{Type: "boolean"},
		},
	}
}

func main() {
	r := &jsonschema.Reflector{
		DoNotReference:             false,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
	}

	schema := r.Reflect(&SchemaConfig{})

	buildSchema := r.ReflectFromType(reflect.TypeOf(BuildConfig{}))
	if def, ok := buildSchema.Definitions["BuildConfig"]; ok {
		schema.Definitions["BuildConfig"] = def
	}

	if schemaConfig, ok := schema.Definitions["SchemaConfig"]; ok {
		// Environment variable names must be valid shell identifiers
		if envVars, ok := schemaConfig.Properties.Get("environment_variables"); ok {
			envVars.PatternProperties = map[string]*jsonschema.Schema{
				"^[A-Za-z_][A-Za-z0-9_]*$": envVars.AdditionalProperties,
			}
			envVars.AdditionalProperties = jsonschema.FalseSchema
		}

		if vars, ok := schemaConfig.Properties.Get("image_build_variables"); ok {
			props := jsonschema.NewProperties()
			one := uint64(1)
			props.Set("build_path", &jsonschema.Schema{
				Type:        "string",
				MinLength:   &one,
				Description: "Docker build context",
			})
			vars.Properties = props
		}
	}

	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.ID = "https://raw.githubusercontent.com/NikitaCOEUR/pylambda/main/schema/pylambda.schema.json"
	schema.Title = "pylambda Configuration"
	schema.Description = "Configuration file for pylambda projects"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	outputPath := "schema.json"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Schema generated: %s\n", outputPath)
}
