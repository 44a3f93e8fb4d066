// Package archive copies published artifacts to S3-compatible object
// storage. It is an optional step appended after publish; an archive
// failure fails the run like any other step.
package archive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// Default env var names for the archive credentials when the config
// does not name its own.
const (
	DefaultAccessKeyEnv = "AWS_ACCESS_KEY_ID"
	DefaultSecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
)

// partSize for multipart uploads. Artifacts are rarely this large; the
// manager falls back to a single put below it.
const partSize = 64 * 1024 * 1024

// ObjectUploader is the slice of the S3 upload manager the archiver
// needs.
type ObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archiver copies artifacts into one bucket under one key prefix.
type Archiver struct {
	uploader ObjectUploader
	bucket   string
	prefix   string
}

// New builds an Archiver from config. Credentials come from the
// environment variables the config names, never from config values.
func New(cfg *config.Archive) (*Archiver, error) {
	accessKeyEnv := cfg.AccessKeyEnv
	if accessKeyEnv == "" {
		accessKeyEnv = DefaultAccessKeyEnv
	}
	secretKeyEnv := cfg.SecretKeyEnv
	if secretKeyEnv == "" {
		secretKeyEnv = DefaultSecretKeyEnv
	}
	accessKey := os.Getenv(accessKeyEnv)
	secretKey := os.Getenv(secretKeyEnv)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("archive credentials missing: set %s and %s", accessKeyEnv, secretKeyEnv)
	}

	awsCfg := aws.NewConfig()
	awsCfg.Region = cfg.Region
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	awsCfg.Credentials = credentials.StaticCredentialsProvider{
		Value: aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
		},
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &Archiver{
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Archive uploads every artifact and returns the object keys written.
// Uploads are sequential; this step has no internal parallelism.
func (a *Archiver) Archive(ctx context.Context, artifacts []*build.Artifact) ([]string, error) {
	keys := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		key := a.objectKey(artifact)
		if err := a.archiveOne(ctx, artifact, key); err != nil {
			return nil, fmt.Errorf("failed to archive %s: %w", artifact.Filename, err)
		}
		console.Infof("Archived %s to s3://%s/%s", artifact.Filename, a.bucket, key)
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *Archiver) archiveOne(ctx context.Context, artifact *build.Artifact, key string) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   file,
		Metadata: map[string]string{
			"sha256": artifact.SHA256,
		},
	})
	return err
}

// objectKey lays out the bucket as <prefix>/<project>/<version>/<file>.
func (a *Archiver) objectKey(artifact *build.Artifact) string {
	parts := []string{artifact.Name, artifact.Version, artifact.Filename}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
