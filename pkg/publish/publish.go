// Package publish uploads built artifacts to the package index using
// trusted publishing: a short-lived identity token from the hosting
// runner is exchanged for a scoped upload token, used once, and
// discarded. Nothing long-lived is read or stored.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/env"
	"github.com/slipway-ci/slipway/pkg/index"
	"github.com/slipway-ci/slipway/pkg/oidc"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// TokenSource yields the upload token a publish authenticates with.
type TokenSource interface {
	UploadToken(ctx context.Context) (string, error)
}

// TrustedSource implements trusted publishing: issue an ambient identity
// token, exchange it at the index for a scoped upload token.
type TrustedSource struct {
	Issuer   *oidc.Issuer
	Index    *index.Client
	Audience string
}

func (t *TrustedSource) UploadToken(ctx context.Context) (string, error) {
	identity, err := t.Issuer.Issue(ctx, t.Audience)
	if err != nil {
		return "", err
	}
	console.Info(identity.Describe())
	token, err := t.Index.MintToken(ctx, identity.Raw)
	if err != nil {
		return "", err
	}
	console.Debug("upload token minted")
	return token, nil
}

// StaticSource is an explicit token, for manual publishes from a
// workstation where no identity issuer exists. Pipeline runs never use
// it.
type StaticSource string

func (s StaticSource) UploadToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// Publisher uploads artifacts to one index.
type Publisher struct {
	Index        *index.Client
	Tokens       TokenSource
	Parallel     int
	SkipExisting bool
}

// NewTrusted builds a Publisher whose token comes from trusted
// publishing. It fails when the host provides no identity issuer.
func NewTrusted(cfg *config.Publish) (*Publisher, error) {
	client, err := index.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	issuer, err := oidc.NewIssuer()
	if err != nil {
		return nil, err
	}
	audience := cfg.Audience
	if fromEnv := env.AudienceFromEnvironment(); fromEnv != "" {
		audience = fromEnv
	}
	return &Publisher{
		Index:        client,
		Tokens:       &TrustedSource{Issuer: issuer, Index: client, Audience: audience},
		Parallel:     cfg.Parallel,
		SkipExisting: cfg.SkipExisting,
	}, nil
}

// Result reports what a publish did, by filename.
type Result struct {
	Uploaded []string
	Skipped  []string
}

// Publish mints one upload token and uploads every artifact with it.
// Uploads within this single step run with bounded parallelism; any
// failure fails the publish. With SkipExisting, files the index already
// has count as skipped rather than failed.
func (p *Publisher) Publish(ctx context.Context, artifacts []*build.Artifact) (*Result, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("nothing to publish")
	}

	token, err := p.Tokens.UploadToken(ctx)
	if err != nil {
		return nil, err
	}

	progress := newProgress(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism(p.Parallel, len(artifacts)))

	var mu sync.Mutex
	result := &Result{}
	for _, artifact := range artifacts {
		artifact := artifact
		g.Go(func() error {
			err := p.uploadOne(ctx, token, artifact, progress)
			switch {
			case errors.Is(err, index.ErrDuplicate) && p.SkipExisting:
				console.Infof("Skipped %s: already on the index", artifact.Filename)
				mu.Lock()
				result.Skipped = append(result.Skipped, artifact.Filename)
				mu.Unlock()
				return nil
			case errors.Is(err, index.ErrDuplicate):
				return fmt.Errorf("%s already exists on the index (set publish.skip_existing: true to tolerate reruns)", artifact.Filename)
			case err != nil:
				return err
			}
			console.Infof("Uploaded %s", artifact.Filename)
			mu.Lock()
			result.Uploaded = append(result.Uploaded, artifact.Filename)
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	progress.Wait()
	if err != nil {
		return nil, err
	}
	sort.Strings(result.Uploaded)
	sort.Strings(result.Skipped)
	return result, nil
}

func (p *Publisher) uploadOne(ctx context.Context, token string, artifact *build.Artifact, progress *uploadProgress) error {
	body, done, err := progress.open(artifact)
	if err != nil {
		return err
	}
	defer done()

	return p.Index.Upload(ctx, token, index.Upload{
		Path:      artifact.Path,
		Body:      body,
		Filename:  artifact.Filename,
		Name:      artifact.Name,
		Version:   artifact.Version,
		Filetype:  artifact.Filetype(),
		PyVersion: artifact.PyVersion,
		SHA256:    artifact.SHA256,
	})
}

// parallelism clamps the configured upload parallelism to something
// sane for n artifacts.
func parallelism(configured, n int) int {
	limit := configured
	if limit <= 0 {
		limit = config.DefaultUploadParallel
	}
	if limit > config.MaxUploadParallel {
		limit = config.MaxUploadParallel
	}
	if limit > n {
		limit = n
	}
	return limit
}
