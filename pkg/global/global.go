package global

import "time"

var (
	// Version and Commit are set at build time with -ldflags.
	Version   = "dev"
	Commit    = ""
	BuildTime = "none"

	Verbose = false

	// ConfigFilename is the pipeline definition file looked up in the
	// project directory.
	ConfigFilename = "slipway.yaml"

	// DefaultIndexURL is the upload endpoint of the default package index.
	DefaultIndexURL = "https://upload.pypi.org/legacy/"

	// DefaultSimpleURL is the PEP 503 simple API root of the default index.
	DefaultSimpleURL = "https://pypi.org/simple/"

	// DefaultAudience is the OIDC audience requested for trusted publishing.
	DefaultAudience = "pypi"

	// ListenAddr is the default bind address for `slipway listen`.
	ListenAddr = ":8341"

	// StepTimeout bounds a single pipeline step unless configured otherwise.
	StepTimeout = 30 * time.Minute
)
