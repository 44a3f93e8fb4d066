package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"

	"github.com/slipway-ci/slipway/pkg/global"
)

const (
	// DefaultBuildCommand produces an sdist and a wheel. It writes into
	// dist/, which is why DefaultOutDir is dist.
	DefaultBuildCommand = "python -m build --sdist --wheel"

	DefaultOutDir         = "dist"
	DefaultInstaller      = "uv"
	DefaultToolName       = "build"
	DefaultWebhookPath    = "/hooks/release"
	DefaultUploadParallel = 4
	MaxUploadParallel     = 8
	DefaultTriggerEvent   = "release"
	DefaultTriggerAction  = "published"
	DefaultRuntimeProbe   = "python --version"
	DefaultVersionFile    = ".python-version"
	FallbackMetadataFile  = "pyproject.toml"
	DefaultIgnoreFilename = ".slipwayignore"
	DefaultArchiveRegion  = "us-east-1"
	DefaultListenAddr     = ":8341"
)

// Config is the parsed and completed slipway.yaml. Load it through
// GetConfig; zero sections are filled with defaults so callers never need
// nil checks on the section pointers.
type Config struct {
	Project string   `json:"project,omitempty" yaml:"project,omitempty"`
	Trigger *Trigger `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Runtime *Runtime `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Tool    *Tool    `json:"tool,omitempty" yaml:"tool,omitempty"`
	Build   *Build   `json:"build,omitempty" yaml:"build,omitempty"`
	Publish *Publish `json:"publish,omitempty" yaml:"publish,omitempty"`
	Archive *Archive `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// Trigger declares which deliveries activate the pipeline. The filter is
// a query document evaluated against the event payload.
type Trigger struct {
	Event   string                 `json:"event,omitempty" yaml:"event,omitempty"`
	Filter  map[string]interface{} `json:"filter,omitempty" yaml:"filter,omitempty"`
	Webhook *Webhook               `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

// Webhook configures the listener endpoint. Secret must be an ${ENV}
// reference; the literal value never appears in the file.
type Webhook struct {
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Addr   string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Runtime declares how the language runtime is provisioned. The version
// itself always comes from project metadata, never from this file.
type Runtime struct {
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	VersionFile string `json:"version_file,omitempty" yaml:"version_file,omitempty"`
	Installer   string `json:"installer,omitempty" yaml:"installer,omitempty"`
}

// Tool pins the build tool installed before the build step.
type Tool struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// Sandbox runs the build inside a container image with the checkout
// bind-mounted, instead of directly on the host.
type Sandbox struct {
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Build configures the artifact-producing step.
type Build struct {
	Command      string            `json:"command,omitempty" yaml:"command,omitempty"`
	OutDir       string            `json:"out_dir,omitempty" yaml:"out_dir,omitempty"`
	CheckVersion bool              `json:"check_version,omitempty" yaml:"check_version,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Sandbox      *Sandbox          `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
}

// Publish configures the index interaction.
type Publish struct {
	IndexURL     string `json:"index_url,omitempty" yaml:"index_url,omitempty"`
	SimpleURL    string `json:"simple_url,omitempty" yaml:"simple_url,omitempty"`
	Audience     string `json:"audience,omitempty" yaml:"audience,omitempty"`
	SkipExisting bool   `json:"skip_existing,omitempty" yaml:"skip_existing,omitempty"`
	Artifacts    string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Parallel     int    `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// Archive configures optional post-publish artifact archival to
// S3-compatible object storage.
type Archive struct {
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Bucket         string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix         string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKeyEnv   string `json:"access_key_env,omitempty" yaml:"access_key_env,omitempty"`
	SecretKeyEnv   string `json:"secret_key_env,omitempty" yaml:"secret_key_env,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty"`
}

// DefaultConfig returns a Config prefilled with defaults. YAML loading
// unmarshals on top of it, so absent keys keep their default values.
func DefaultConfig() *Config {
	return &Config{
		Trigger: &Trigger{
			Event: DefaultTriggerEvent,
		},
		Runtime: &Runtime{
			Installer: DefaultInstaller,
		},
		Tool: &Tool{
			Name: DefaultToolName,
		},
		Build: &Build{
			Command:      DefaultBuildCommand,
			OutDir:       DefaultOutDir,
			CheckVersion: true,
		},
		Publish: &Publish{
			IndexURL:  global.DefaultIndexURL,
			SimpleURL: global.DefaultSimpleURL,
			Audience:  global.DefaultAudience,
			Parallel:  DefaultUploadParallel,
		},
	}
}

// FromYAML parses config from a byte slice, validating it against the
// schema first. Missing keys keep their defaults.
func FromYAML(contents []byte) (*Config, error) {
	if err := validateSchema(contents); err != nil {
		return nil, err
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(contents, config); err != nil {
		return nil, &ParseError{Filename: global.ConfigFilename, Err: err}
	}
	config.applyDefaults()
	return config, nil
}

// applyDefaults fills sections the file left out entirely, so callers can
// rely on non-nil section pointers and non-empty core fields.
func (c *Config) applyDefaults() {
	if c.Trigger == nil {
		c.Trigger = &Trigger{}
	}
	if c.Trigger.Event == "" {
		c.Trigger.Event = DefaultTriggerEvent
	}
	if c.Trigger.Webhook != nil {
		if c.Trigger.Webhook.Path == "" {
			c.Trigger.Webhook.Path = DefaultWebhookPath
		}
		if c.Trigger.Webhook.Addr == "" {
			c.Trigger.Webhook.Addr = DefaultListenAddr
		}
	}
	if c.Runtime == nil {
		c.Runtime = &Runtime{}
	}
	if c.Runtime.Installer == "" {
		c.Runtime.Installer = DefaultInstaller
	}
	if c.Tool == nil {
		c.Tool = &Tool{}
	}
	if c.Tool.Name == "" {
		c.Tool.Name = DefaultToolName
	}
	if c.Build == nil {
		c.Build = &Build{CheckVersion: true}
	}
	if c.Build.Command == "" {
		c.Build.Command = DefaultBuildCommand
	}
	if c.Build.OutDir == "" {
		c.Build.OutDir = DefaultOutDir
	}
	if c.Publish == nil {
		c.Publish = &Publish{}
	}
	if c.Publish.IndexURL == "" {
		c.Publish.IndexURL = global.DefaultIndexURL
	}
	if c.Publish.SimpleURL == "" {
		c.Publish.SimpleURL = global.DefaultSimpleURL
	}
	if c.Publish.Audience == "" {
		c.Publish.Audience = global.DefaultAudience
	}
	if c.Publish.Parallel == 0 {
		c.Publish.Parallel = DefaultUploadParallel
	}
	if c.Archive != nil && c.Archive.Region == "" {
		c.Archive.Region = DefaultArchiveRegion
	}
}

// EffectiveFilter returns the trigger filter document, defaulting to
// matching the published action.
func (c *Config) EffectiveFilter() map[string]interface{} {
	if c.Trigger != nil && c.Trigger.Filter != nil {
		return c.Trigger.Filter
	}
	return map[string]interface{}{"action": DefaultTriggerAction}
}

// envReference is the only accepted shape for secret-bearing fields.
var envReference = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// IsEnvReference reports whether value has the ${NAME} shape.
func IsEnvReference(value string) bool {
	return envReference.MatchString(value)
}

// ResolveSecret reads the webhook secret from the environment variable
// the ${NAME} reference points at. The variable must be set and non-empty.
func (w *Webhook) ResolveSecret() (string, error) {
	if w == nil || w.Secret == "" {
		return "", fmt.Errorf("no webhook secret configured")
	}
	m := envReference.FindStringSubmatch(w.Secret)
	if m == nil {
		return "", fmt.Errorf("webhook secret must be an environment reference like ${SLIPWAY_WEBHOOK_SECRET}")
	}
	value := os.Getenv(m[1])
	if value == "" {
		return "", fmt.Errorf("webhook secret variable %s is not set", m[1])
	}
	return value, nil
}
