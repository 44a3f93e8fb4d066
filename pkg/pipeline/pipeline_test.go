package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/config"
	"github.com/slipway-ci/slipway/pkg/env"
	"github.com/slipway-ci/slipway/pkg/event"
	"github.com/slipway-ci/slipway/pkg/executor"
	"github.com/slipway-ci/slipway/pkg/index"
	"github.com/slipway-ci/slipway/pkg/publish"
	"github.com/slipway-ci/slipway/pkg/store"
)

type fakeStep struct {
	name string
	run  func(ctx context.Context, st *State) error
}

func (s fakeStep) Name() string { return s.name }

func (s fakeStep) Run(ctx context.Context, st *State) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, st)
}

func TestEngineRunsStepsInOrder(t *testing.T) {
	var order []string
	steps := []Step{
		fakeStep{name: "one", run: func(context.Context, *State) error { order = append(order, "one"); return nil }},
		fakeStep{name: "two", run: func(context.Context, *State) error { order = append(order, "two"); return nil }},
		fakeStep{name: "three", run: func(context.Context, *State) error { order = append(order, "three"); return nil }},
	}

	engine := &Engine{}
	require.NoError(t, engine.Run(context.Background(), steps, &State{}))
	require.Equal(t, []string{"one", "two", "three"}, order)
}

func TestEngineStopsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var ranThird bool
	steps := []Step{
		fakeStep{name: "one"},
		fakeStep{name: "two", run: func(context.Context, *State) error { return boom }},
		fakeStep{name: "three", run: func(context.Context, *State) error { ranThird = true; return nil }},
	}

	err := (&Engine{}).Run(context.Background(), steps, &State{})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Equal(t, "step two: boom", err.Error())
	require.False(t, ranThird)
}

func TestEngineHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	steps := []Step{fakeStep{name: "one", run: func(context.Context, *State) error { ran = true; return nil }}}
	err := (&Engine{}).Run(ctx, steps, &State{})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ran)
}

// recorderLog captures recorder calls for assertions.
type recorderLog struct {
	steps     []string
	revision  string
	artifacts []store.Artifact
	uploaded  []string
	fail      bool
}

func (r *recorderLog) err() error {
	if r.fail {
		return errors.New("history unavailable")
	}
	return nil
}

func (r *recorderLog) SetStep(_ context.Context, _, step string) error {
	r.steps = append(r.steps, step)
	return r.err()
}

func (r *recorderLog) SetSource(_ context.Context, _, revision, _ string) error {
	r.revision = revision
	return r.err()
}

func (r *recorderLog) AddArtifacts(_ context.Context, _ string, artifacts []store.Artifact) error {
	r.artifacts = append(r.artifacts, artifacts...)
	return r.err()
}

func (r *recorderLog) MarkUploaded(_ context.Context, _, filename string) error {
	r.uploaded = append(r.uploaded, filename)
	return r.err()
}

func TestEngineRecordsProgress(t *testing.T) {
	steps := []Step{
		fakeStep{name: StepCheckout, run: func(_ context.Context, st *State) error {
			st.Revision = "abc123"
			st.Fingerprint = "fp"
			return nil
		}},
		fakeStep{name: StepBuild, run: func(_ context.Context, st *State) error {
			st.Artifacts = []*build.Artifact{
				{Filename: "demo-1.0.0-py3-none-any.whl", Kind: "wheel", Size: 10, SHA256: "aa"},
				{Filename: "demo-1.0.0.tar.gz", Kind: "sdist", Size: 20, SHA256: "bb"},
			}
			return nil
		}},
		fakeStep{name: StepPublish, run: func(_ context.Context, st *State) error {
			st.Publish = &publish.Result{
				Uploaded: []string{"demo-1.0.0-py3-none-any.whl"},
				Skipped:  []string{"demo-1.0.0.tar.gz"},
			}
			return nil
		}},
	}

	rec := &recorderLog{}
	engine := &Engine{Recorder: rec, RunID: "run-1"}
	require.NoError(t, engine.Run(context.Background(), steps, &State{}))

	require.Equal(t, []string{StepCheckout, StepBuild, StepPublish}, rec.steps)
	require.Equal(t, "abc123", rec.revision)
	require.Len(t, rec.artifacts, 2)
	require.Equal(t, "demo-1.0.0-py3-none-any.whl", rec.artifacts[0].Filename)
	// Skipped files end up flagged too; they are on the index either way.
	require.ElementsMatch(t, []string{"demo-1.0.0-py3-none-any.whl", "demo-1.0.0.tar.gz"}, rec.uploaded)
}

func TestEngineToleratesRecorderFailures(t *testing.T) {
	steps := []Step{
		fakeStep{name: StepCheckout, run: func(_ context.Context, st *State) error {
			st.Revision = "abc123"
			return nil
		}},
	}
	engine := &Engine{Recorder: &recorderLog{fail: true}, RunID: "run-1"}
	require.NoError(t, engine.Run(context.Background(), steps, &State{}))
}

func TestStepsComposition(t *testing.T) {
	cfg := config.DefaultConfig()
	names := stepNames(Steps(cfg))
	require.Equal(t, []string{StepCheckout, StepRuntime, StepToolchain, StepBuild, StepPublish}, names)

	cfg.Archive = &config.Archive{Bucket: "releases"}
	names = stepNames(Steps(cfg))
	require.Equal(t, []string{StepCheckout, StepRuntime, StepToolchain, StepBuild, StepPublish, StepArchive}, names)
}

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, step := range steps {
		names[i] = step.Name()
	}
	return names
}

func fakeJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// TestPipelineEndToEnd drives the real steps over a local project with a
// scripted subprocess runner and an in-process index, and checks the run
// history the engine recorded along the way.
func TestPipelineEndToEnd(t *testing.T) {
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".python-version"), []byte("3.12\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "pyproject.toml"), []byte("[project]\nname = \"demo\"\n"), 0o644))

	identity := fakeJWT(t, map[string]interface{}{"sub": "repo:acme/demo", "aud": "pypi"})

	var uploadsMu sync.Mutex
	var uploads []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.Equal(t, "pypi", r.URL.Query().Get("audience"))
			fmt.Fprintf(w, `{"value": %q}`, identity)
		case "/_/oidc/mint-token":
			var body struct {
				Token string `json:"token"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, identity, body.Token)
			fmt.Fprint(w, `{"token": "pypi-minted", "expires": 900}`)
		case "/simple/build/":
			fmt.Fprint(w, `<html><body><a href="#">build-1.0.9.tar.gz</a><a href="#">build-1.1.0rc1.tar.gz</a></body></html>`)
		case "/legacy/":
			user, token, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, index.TokenUsername, user)
			require.Equal(t, "pypi-minted", token)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, header, err := r.FormFile("content")
			require.NoError(t, err)
			uploadsMu.Lock()
			uploads = append(uploads, header.Filename)
			uploadsMu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	t.Setenv(env.TokenRequestURLEnvVarName, server.URL+"/token")
	t.Setenv(env.TokenRequestTokenEnvVarName, "runner-bearer")

	cfg := config.DefaultConfig()
	cfg.Project = "demo"
	cfg.Publish.IndexURL = server.URL + "/legacy/"
	cfg.Publish.SimpleURL = server.URL + "/simple/"

	runner := &executor.Mock{
		OutputFunc: func(cmd executor.Command) ([]byte, error) {
			switch cmd.Name {
			case "git":
				return []byte("1111111111111111111111111111111111111111\n"), nil
			case "uv":
				return []byte("cpython-3.12.8-linux-x86_64-gnu    /usr/bin/python3.12\n"), nil
			case "python":
				return []byte("Python 3.12.8\n"), nil
			}
			return nil, nil
		},
		RunFunc: func(cmd executor.Command) error {
			if cmd.Name != "sh" {
				return nil
			}
			distDir := filepath.Join(cmd.Dir, "dist")
			if err := os.MkdirAll(distDir, 0o755); err != nil {
				return err
			}
			for _, name := range []string{"demo-1.2.0-py3-none-any.whl", "demo-1.2.0.tar.gz"} {
				if err := os.WriteFile(filepath.Join(distDir, name), []byte(name), 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}

	evt, err := event.Parse([]byte(`{
		"action": "published",
		"release": {"tag_name": "v1.2.0", "target_commitish": "main"},
		"repository": {"full_name": "acme/demo", "clone_url": "https://forge.example/acme/demo.git"},
		"sender": {"login": "someone"}
	}`))
	require.NoError(t, err)

	history, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer history.Close()

	run := &store.Run{Repo: "acme/demo", Tag: "v1.2.0"}
	require.NoError(t, history.CreateRun(context.Background(), run))

	st := &State{
		Event:       evt,
		Config:      cfg,
		Runner:      runner,
		WorkDir:     t.TempDir(),
		CheckoutDir: projectDir,
		LocalSource: true,
	}
	engine := &Engine{Recorder: history, RunID: run.ID}
	require.NoError(t, engine.Run(context.Background(), Steps(cfg), st))

	require.Equal(t, "3.12.8", st.Runtime.Version)
	require.Equal(t, "build", st.Tool.Name)
	require.Equal(t, "1.0.9", st.Tool.Version)
	require.Len(t, st.Artifacts, 2)
	require.ElementsMatch(t, []string{"demo-1.2.0-py3-none-any.whl", "demo-1.2.0.tar.gz"}, st.Publish.Uploaded)
	require.ElementsMatch(t, []string{"demo-1.2.0-py3-none-any.whl", "demo-1.2.0.tar.gz"}, uploads)
	require.Contains(t, runner.CommandLines(), "python -m pip install --upgrade build==1.0.9")

	recorded, err := history.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, StepPublish, recorded.Step)
	require.Equal(t, "1111111111111111111111111111111111111111", recorded.Revision)
	require.NotEmpty(t, recorded.Fingerprint)

	artifacts, err := history.RunArtifacts(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	for _, artifact := range artifacts {
		require.True(t, artifact.Uploaded, "%s should be flagged uploaded", artifact.Filename)
	}
}
