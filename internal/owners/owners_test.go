package owners_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougbtv/vllm-ci-mcp/internal/owners"
)

func TestInferOwnerMissingRepoPath(t *testing.T) {
	r := owners.NewResolver("")
	_, _, ok := r.Infer("tests/a.py")
	assert.False(t, ok)
}

func TestInferOwnerFromCodeowners(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "CODEOWNERS"),
		[]byte("tests/distributed/* @dist-team\ntests/* @core-team\n"),
		0o644,
	))

	r := owners.NewResolver(dir)
	owner, confidence, ok := r.Infer("tests/distributed/test_dbo.py")

	require.True(t, ok)
	assert.Equal(t, "dist-team", owner)
	assert.Equal(t, owners.ConfidenceCodeowners, confidence)
}

func TestInferOwnerFallsBackToBlame(t *testing.T) {
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	testFile := filepath.Join(dir, "tests", "a.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(testFile), 0o755))
	require.NoError(t, os.WriteFile(testFile, []byte("def test_one(): pass\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("tests/a.py")
	require.NoError(t, err)

	sig := &object.Signature{Name: "Jane Doe", Email: "jane@example.com", When: time.Now()}
	_, err = wt.Commit("add test", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	r := owners.NewResolver(dir)
	owner, confidence, ok := r.Infer("tests/a.py")

	require.True(t, ok)
	assert.Equal(t, "jane@example.com", owner)
	assert.Equal(t, owners.ConfidenceBlame, confidence)
}
