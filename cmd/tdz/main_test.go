package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// run executes the app against root with the mock backend and returns
// stdout.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	full := append([]string{"tdz", "--root", root, "--backend", "mock", "--log-level", "error"}, args...)
	err := app.Run(full)
	return out.String(), err
}

func findCommand(t *testing.T, name string) *cli.Command {
	t.Helper()
	for _, cmd := range newApp().Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %s not registered", name)
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	t.Run("root has default and env var", func(t *testing.T) {
		var rootFlag *cli.StringFlag
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "root" {
				rootFlag = f
			}
		}
		require.NotNil(t, rootFlag)
		assert.Equal(t, defaultRoot, rootFlag.Value)
		assert.Equal(t, []string{"TDZ_ROOT"}, rootFlag.EnvVars)
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := run(t, t.TempDir(), "--log-level", "loud", "stats")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid backend", func(t *testing.T) {
		app := newApp()
		app.Writer = &bytes.Buffer{}
		app.ErrWriter = &bytes.Buffer{}
		err := app.Run([]string{"tdz", "--root", t.TempDir(), "--backend", "quantum", "stats"})
		require.Error(t, err)
	})
}

func TestCommandFlags(t *testing.T) {
	t.Run("reembed batch-size has default value of 100", func(t *testing.T) {
		cmd := findCommand(t, "reembed")
		var batchFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "batch-size" {
				batchFlag = f
			}
		}
		require.NotNil(t, batchFlag)
		assert.Equal(t, 100, batchFlag.Value)
	})

	t.Run("add-memory requires meaning and reason", func(t *testing.T) {
		cmd := findCommand(t, "add-memory")
		required := map[string]bool{}
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.StringFlag); ok {
				required[f.Name] = f.Required
			}
		}
		assert.True(t, required["meaning"])
		assert.True(t, required["reason"])
		assert.False(t, required["term"])
	})
}

func TestAddAndSearch(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, root, "add-task", "--project", "docs", "--tag", "api", "Write", "documentation", "for", "the", "REST", "API")
	require.NoError(t, err)
	assert.Contains(t, out, "created task")
	assert.Contains(t, out, "in docs (embedded)")

	_, err = run(t, root, "add-idea", "--share", "team", "Deploy with blue green switching")
	require.NoError(t, err)
	_, err = run(t, root, "add-memory", "--meaning", "naming matters", "--reason", "review feedback", "Renamed the api package")
	require.NoError(t, err)

	out, err = run(t, root, "search", "--threshold", "0.3", "api documentation")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "task")

	out, err = run(t, root, "search", "--tasks", "--threshold", "-1", "deploy")
	require.NoError(t, err)
	assert.NotContains(t, out, "idea")

	out, err = run(t, root, "hybrid", "--threshold", "0", "--semantic-weight", "0", "--keyword", "green", "deploy green")
	require.NoError(t, err)
	assert.Contains(t, strings.SplitN(out, "\n", 2)[0], "idea")

	out, err = run(t, root, "list", "--kind", "task")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "todo")

	out, err = run(t, root, "stats", "--project", "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache: 3 entries")
	assert.Contains(t, out, "Project docs: 1 total")

	_, err = run(t, root, "search")
	assert.Error(t, err)
	_, err = run(t, root, "add-task", "--priority", "whenever", "x")
	assert.Error(t, err)
}

func TestStatusAndDelete(t *testing.T) {
	root := t.TempDir()
	out, err := run(t, root, "add-task", "Ship", "it")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = run(t, root, "status", id, "done")
	require.NoError(t, err)
	assert.Contains(t, out, "is now done")

	_, err = run(t, root, "delete", id)
	require.NoError(t, err)
	out, err = run(t, root, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = run(t, root, "list", "--deleted")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestVersionsAndBackups(t *testing.T) {
	root := t.TempDir()
	out, err := run(t, root, "add-task", "Draft", "the", "roadmap")
	require.NoError(t, err)
	id := createdID(t, out)

	_, err = run(t, root, "version", id, "v1")
	require.NoError(t, err)
	out, err = run(t, root, "history", id)
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "Draft the roadmap")

	out, err = run(t, root, "backup")
	require.NoError(t, err)
	path := strings.TrimSpace(strings.TrimPrefix(out, "backup written to "))
	assert.FileExists(t, path)

	out, err = run(t, root, "backup", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(path))

	out, err = run(t, root, "restore", filepath.Base(path))
	require.NoError(t, err)
	assert.Contains(t, out, "restored 1 entries")

	out, err = run(t, root, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "0 invalid")
}

func TestIngestSeedAndAnalysis(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "util.go")
	require.NoError(t, os.WriteFile(src, []byte("package util\n\nfunc A() int { return 1 }\n\nfunc B() int { return 2 }\n"), 0o644))

	out, err := run(t, root, "ingest", "--project", "code", src)
	require.NoError(t, err)
	assert.NotContains(t, out, " 0 created")

	out, err = run(t, root, "ingest", "--project", "code", src)
	require.NoError(t, err)
	assert.Contains(t, out, " 0 created")

	plan := filepath.Join(t.TempDir(), "plan.txt")
	require.NoError(t, os.WriteFile(plan, []byte("<chunk>db; module; storage layer</chunk>"), 0o644))
	out, err = run(t, root, "ingest", "--plan", "--project", "code", plan)
	require.NoError(t, err)
	assert.Contains(t, out, "1 created")

	out, err = run(t, root, "seed", "--batch-size", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 20 ideas")

	seedFile := filepath.Join(t.TempDir(), "seed.txt")
	require.NoError(t, os.WriteFile(seedFile, []byte("first line\n\nsecond line\n"), 0o644))
	out, err = run(t, root, "seed", "--src", seedFile)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 ideas")

	_, err = run(t, root, "cluster", "--threshold", "0.5")
	require.NoError(t, err)

	out, err = run(t, root, "cluster", "--threshold", "0.5", "--kind", "code_chunk")
	require.NoError(t, err)
	assert.NotContains(t, out, "] idea ")
	_, err = run(t, root, "cluster", "--kind", "poem")
	assert.Error(t, err)

	out, err = run(t, root, "diagnose", "--iterations", "2", "embedding cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Hit rate")
	assert.Contains(t, out, `"embedding cache"`)

	out, err = run(t, root, "reembed", "--batch-size", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "reembedded")
}

func createdID(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 3, out)
	return fields[2]
}
