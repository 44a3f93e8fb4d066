package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndFinishRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{DeliveryID: "guid-1", Repo: "acme/widget", Tag: "v1.2.0"}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)
	require.Equal(t, StatusRunning, run.Status)
	require.False(t, run.StartedAt.IsZero())

	require.NoError(t, s.SetStep(ctx, run.ID, "checkout"))
	require.NoError(t, s.SetSource(ctx, run.ID, "abc123", "sha256:feed"))
	require.NoError(t, s.SetStep(ctx, run.ID, "publish"))
	require.NoError(t, s.FinishRun(ctx, run.ID, nil))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, got.Status)
	require.Equal(t, "publish", got.Step)
	require.Equal(t, "abc123", got.Revision)
	require.Equal(t, "sha256:feed", got.Fingerprint)
	require.Empty(t, got.Error)
	require.False(t, got.FinishedAt.IsZero())
}

func TestFinishRunFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{Repo: "acme/widget", Tag: "v1.2.0"}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.SetStep(ctx, run.ID, "build"))
	require.NoError(t, s.FinishRun(ctx, run.ID, errors.New("build command failed")))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "build", got.Step)
	require.Equal(t, "build command failed", got.Error)
}

func TestGetRunByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{ID: "aaaa1111-0000-0000-0000-000000000000"}
	require.NoError(t, s.CreateRun(ctx, run))
	other := &Run{ID: "bbbb2222-0000-0000-0000-000000000000"}
	require.NoError(t, s.CreateRun(ctx, other))

	got, err := s.GetRun(ctx, "aaaa")
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)

	_, err = s.GetRun(ctx, "cccc")
	require.Error(t, err)

	// A prefix common to both runs is ambiguous.
	ambiguous := &Run{ID: "aaaa9999-0000-0000-0000-000000000000"}
	require.NoError(t, s.CreateRun(ctx, ambiguous))
	_, err = s.GetRun(ctx, "aaaa")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ambiguous")
}

func TestArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &Run{Repo: "acme/widget", Tag: "v1.2.0"}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.AddArtifacts(ctx, run.ID, []Artifact{
		{Filename: "widget-1.2.0.tar.gz", Kind: "sdist", Size: 10, SHA256: "aa"},
		{Filename: "widget-1.2.0-py3-none-any.whl", Kind: "wheel", Size: 20, SHA256: "bb"},
	}))
	require.NoError(t, s.MarkUploaded(ctx, run.ID, "widget-1.2.0.tar.gz"))

	artifacts, err := s.RunArtifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	// Sorted by filename: the wheel sorts before the sdist.
	require.Equal(t, "widget-1.2.0-py3-none-any.whl", artifacts[0].Filename)
	require.False(t, artifacts[0].Uploaded)
	require.Equal(t, "widget-1.2.0.tar.gz", artifacts[1].Filename)
	require.True(t, artifacts[1].Uploaded)
}

func TestSeenDelivery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen, err := s.SeenDelivery(ctx, "guid-7")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, s.CreateRun(ctx, &Run{DeliveryID: "guid-7"}))

	seen, err = s.SeenDelivery(ctx, "guid-7")
	require.NoError(t, err)
	require.True(t, seen)

	// Manual runs carry no delivery GUID and never dedup.
	seen, err = s.SeenDelivery(ctx, "")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tag := range []string{"v1.0.0", "v1.1.0", "v1.2.0"} {
		require.NoError(t, s.CreateRun(ctx, &Run{Repo: "acme/widget", Tag: tag}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateRun(context.Background(), &Run{Repo: "acme/widget"}))
	require.NoError(t, s.Close())

	// Reopening migrates nothing and keeps the data.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestRunDocument(t *testing.T) {
	run := &Run{
		ID:     "run-1",
		Repo:   "acme/widget",
		Tag:    "v1.2.0",
		Status: StatusFailed,
		Step:   "build",
		Error:  "boom",
	}
	doc := run.Document()
	require.Equal(t, "acme/widget", doc["repo"])
	require.Equal(t, StatusFailed, doc["status"])
	require.Equal(t, "build", doc["step"])
}
