package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/hashicorp/go-version"
	"github.com/xeipuuv/gojsonschema"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/slipway-ci/slipway/pkg/match"
	"github.com/slipway-ci/slipway/pkg/util/files"
)

//go:embed data/config_schema_v1.0.json
var schemaV1 []byte

// projectNamePattern is the index's project-name grammar.
var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// ValidateAndComplete fills remaining defaults and runs semantic
// validation, returning the combined error when anything is invalid.
// rootDir is used to resolve relative paths; pass "" to skip checks that
// need the project on disk.
func (c *Config) ValidateAndComplete(rootDir string) error {
	c.applyDefaults()
	return c.Validate(rootDir).Err()
}

// Validate runs semantic validation and returns every problem found, so
// callers that report to humans can show them all at once.
func (c *Config) Validate(rootDir string) *ValidationResult {
	result := NewValidationResult()

	validateProject(c, result)
	validateTrigger(c, result)
	validateRuntime(c, rootDir, result)
	validateTool(c, result)
	validateBuild(c, result)
	validatePublish(c, result)
	validateArchive(c, result)

	return result
}

// validateSchema validates raw YAML contents against the JSON schema.
func validateSchema(contents []byte) error {
	jsonContents, err := sigsyaml.YAMLToJSON(contents)
	if err != nil {
		return &ParseError{Filename: "slipway.yaml", Err: err}
	}
	schemaLoader := gojsonschema.NewBytesLoader(schemaV1)
	documentLoader := gojsonschema.NewBytesLoader(jsonContents)

	validationResult, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaError{Field: "(root)", Message: err.Error()}
	}
	if !validationResult.Valid() {
		return getMostSpecificSchemaError(validationResult.Errors())
	}
	return nil
}

func validateProject(c *Config, result *ValidationResult) {
	if c.Project == "" {
		return
	}
	if !projectNamePattern.MatchString(c.Project) {
		result.AddError(&ValidationError{
			Field:   "project",
			Value:   c.Project,
			Message: "must start and end with a letter or digit and may contain -, _, .",
		})
	}
}

func validateTrigger(c *Config, result *ValidationResult) {
	if c.Trigger == nil {
		return
	}
	if c.Trigger.Event != DefaultTriggerEvent {
		result.AddError(&ValidationError{
			Field:   "trigger.event",
			Value:   c.Trigger.Event,
			Message: `only "release" deliveries can activate the pipeline`,
		})
	}
	if c.Trigger.Filter != nil {
		if err := match.NewQuery(c.Trigger.Filter).Validate(); err != nil {
			result.AddError(&ValidationError{
				Field:   "trigger.filter",
				Message: err.Error(),
			})
		}
	}
	if w := c.Trigger.Webhook; w != nil && w.Secret != "" && !IsEnvReference(w.Secret) {
		result.AddError(&ValidationError{
			Field:   "trigger.webhook.secret",
			Message: "must be an environment reference like ${SLIPWAY_WEBHOOK_SECRET}, never a literal secret",
		})
	}
}

func validateRuntime(c *Config, rootDir string, result *ValidationResult) {
	if c.Runtime == nil {
		return
	}
	if c.Runtime.Version != "" {
		result.AddError(&ValidationError{
			Field:   "runtime.version",
			Value:   c.Runtime.Version,
			Message: "runtime versions are declared in project metadata (.python-version or pyproject.toml), not in slipway.yaml",
		})
	}
	if c.Runtime.VersionFile != "" && rootDir != "" {
		path := filepath.Join(rootDir, c.Runtime.VersionFile)
		if exists, err := files.Exists(path); err == nil && !exists {
			result.AddError(&ValidationError{
				Field:   "runtime.version_file",
				Value:   c.Runtime.VersionFile,
				Message: fmt.Sprintf("not found in %s", rootDir),
			})
		}
	}
}

func validateTool(c *Config, result *ValidationResult) {
	if c.Tool == nil {
		return
	}
	if c.Tool.Version != "" && c.Tool.Constraint != "" {
		result.AddError(&ValidationError{
			Field:   "tool",
			Message: "only one of version or constraint can be set, not both",
		})
	}
	if c.Tool.Version != "" {
		if _, err := version.NewVersion(c.Tool.Version); err != nil {
			result.AddError(&ValidationError{
				Field:   "tool.version",
				Value:   c.Tool.Version,
				Message: "not a valid version",
			})
		}
	}
	if c.Tool.Constraint != "" {
		if _, err := version.NewConstraint(c.Tool.Constraint); err != nil {
			result.AddError(&ValidationError{
				Field:   "tool.constraint",
				Value:   c.Tool.Constraint,
				Message: "not a valid version constraint",
			})
		}
	}
}

func validateBuild(c *Config, result *ValidationResult) {
	if c.Build == nil {
		return
	}
	if filepath.IsAbs(c.Build.OutDir) || strings.HasPrefix(filepath.Clean(c.Build.OutDir), "..") {
		result.AddError(&ValidationError{
			Field:   "build.out_dir",
			Value:   c.Build.OutDir,
			Message: "must be a relative path inside the project",
		})
	}
	if c.Build.Sandbox != nil && c.Build.Sandbox.Image != "" {
		if _, err := name.ParseReference(c.Build.Sandbox.Image); err != nil {
			result.AddError(&ValidationError{
				Field:   "build.sandbox.image",
				Value:   c.Build.Sandbox.Image,
				Message: "not a valid image reference",
			})
		}
	}
}

func validatePublish(c *Config, result *ValidationResult) {
	if c.Publish == nil {
		return
	}
	for field, value := range map[string]string{
		"publish.index_url":  c.Publish.IndexURL,
		"publish.simple_url": c.Publish.SimpleURL,
	} {
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.AddError(&ValidationError{
				Field:   field,
				Value:   value,
				Message: "must be an http(s) URL",
			})
		}
	}
	if c.Publish.Parallel < 1 || c.Publish.Parallel > MaxUploadParallel {
		result.AddError(&ValidationError{
			Field:   "publish.parallel",
			Value:   fmt.Sprintf("%d", c.Publish.Parallel),
			Message: fmt.Sprintf("must be between 1 and %d", MaxUploadParallel),
		})
	}
	if c.Publish.Artifacts != "" {
		if _, err := filepath.Match(filepath.Base(c.Publish.Artifacts), "probe"); err != nil {
			result.AddError(&ValidationError{
				Field:   "publish.artifacts",
				Value:   c.Publish.Artifacts,
				Message: "not a valid glob pattern",
			})
		}
	}
}

func validateArchive(c *Config, result *ValidationResult) {
	if c.Archive == nil {
		return
	}
	if c.Archive.Bucket == "" {
		result.AddError(&ValidationError{
			Field:   "archive.bucket",
			Message: "required when archive is configured",
		})
	}
	if c.Archive.Endpoint != "" {
		u, err := url.Parse(c.Archive.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.AddError(&ValidationError{
				Field:   "archive.endpoint",
				Value:   c.Archive.Endpoint,
				Message: "must be an http(s) URL",
			})
		}
	}
}

// getMostSpecificSchemaError extracts the most specific error from schema
// validation, so users see the leaf problem rather than a root summary.
func getMostSpecificSchemaError(errors []gojsonschema.ResultError) *SchemaError {
	if len(errors) == 0 {
		return &SchemaError{Field: "(unknown)", Message: "unknown schema error"}
	}

	mostSpecific := 0
	for i, err := range errors {
		if schemaErrorSpecificity(err) > schemaErrorSpecificity(errors[mostSpecific]) {
			mostSpecific = i
		} else if schemaErrorSpecificity(err) == schemaErrorSpecificity(errors[mostSpecific]) {
			// Invalid type errors win in a tie-breaker
			if err.Type() == "invalid_type" && errors[mostSpecific].Type() != "invalid_type" {
				mostSpecific = i
			}
		}
	}

	err := errors[mostSpecific]
	field := err.Field()
	if field == "(root)" {
		field = "slipway.yaml"
	}

	return &SchemaError{
		Field:   field,
		Message: getSchemaErrorDescription(err, errors, mostSpecific),
	}
}

// schemaErrorSpecificity is the depth of the field path the error points
// at. Deeper is more specific.
func schemaErrorSpecificity(err gojsonschema.ResultError) int {
	return len(strings.Split(err.Field(), "."))
}

// getSchemaErrorDescription generates a human-readable description for a
// schema error.
func getSchemaErrorDescription(err gojsonschema.ResultError, allErrors []gojsonschema.ResultError, index int) string {
	switch err.Type() {
	case "invalid_type":
		if expectedType, ok := err.Details()["expected"].(string); ok {
			return fmt.Sprintf("must be a %s", humanReadableSchemaType(expectedType))
		}
	case "number_one_of", "number_any_of":
		if index+1 < len(allErrors) {
			return allErrors[index+1].Description()
		}
	}
	return err.Description()
}

// humanReadableSchemaType converts JSON schema type names to human-readable names.
func humanReadableSchemaType(definition string) string {
	if len(definition) > 0 && definition[0] == '[' {
		allTypes := strings.Split(definition[1:len(definition)-1], ",")
		for i, t := range allTypes {
			allTypes[i] = humanReadableSchemaType(strings.TrimSpace(t))
		}
		return fmt.Sprintf("%s or %s",
			strings.Join(allTypes[0:len(allTypes)-1], ", "),
			allTypes[len(allTypes)-1])
	}
	switch definition {
	case "object":
		return "mapping"
	case "array":
		return "list"
	default:
		return definition
	}
}
