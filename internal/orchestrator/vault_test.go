package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/curator/internal/checksum"
	"github.com/starford/curator/internal/connect"
	"github.com/starford/curator/internal/enhance"
	"github.com/starford/curator/internal/incident"
	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/noteservice"
	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/quality"
	"github.com/starford/curator/internal/testutil"
)

const (
	goNote      = "---\ntitle: Go\ntags: [lang, go, runtime]\n---\n# Go\nGolang concurrency channels goroutines scheduler.\n"
	runtimeNote = "# Go runtime\nGolang concurrency channels goroutines scheduler preemption.\n"
)

type staticProvider struct {
	name string
	err  error
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) GenerateTags(context.Context, string) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []string{"golang", "concurrency"}, nil
}

func (p staticProvider) Summarize(context.Context, string) (string, error) {
	return "About Go concurrency.", p.err
}

type vaultEnv struct {
	dir   string
	db    *index.DB
	notes *noteservice.Service
	deps  Deps
}

func newVaultEnv(t *testing.T, enhancer Enhancer, sink incident.Sink) *vaultEnv {
	t.Helper()
	dir, store := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "a.md", goNote)
	testutil.WriteNote(t, dir, "b.md", runtimeNote)

	db := testutil.TestDB(t)
	require.NoError(t, index.Sync(db, store, testutil.Logger()))

	notes := noteservice.NewService(store, db)
	return &vaultEnv{
		dir:   dir,
		db:    db,
		notes: notes,
		deps: Deps{
			Quality:   quality.New(store),
			Enhancer:  enhancer,
			Finder:    connect.NewFinder(db, connect.NewLexicalBackend(db), time.Second, testutil.Logger()),
			Persister: notes,
			Incidents: sink,
			Logger:    testutil.Logger(),
		},
	}
}

func TestProcess_NonCanonicalPathUsesVaultForm(t *testing.T) {
	engine := enhance.New([]enhance.Tier{{Source: models.SourceLocal, Provider: staticProvider{name: "local"}}}, nil, testutil.Logger(), enhance.Config{})
	env := newVaultEnv(t, engine, nil)
	cfg := DefaultConfig()
	cfg.MinSimilarity = 0.3
	o := New(env.deps, cfg)

	res := o.Process(context.Background(), "./a.md", Options{})

	require.True(t, res.Success, "errors: %+v", res.Errors)
	assert.Equal(t, "a.md", res.Path)
	for _, c := range res.Connections {
		assert.NotEqual(t, "a.md", c.Target, "note suggested as its own connection")
	}
	require.NotEmpty(t, res.Connections)
	assert.Equal(t, "b.md", res.Connections[0].Target)

	corpus, err := env.db.Corpus(context.Background())
	require.NoError(t, err)
	paths := make([]string, 0, len(corpus))
	for _, row := range corpus {
		paths = append(paths, row.Path)
	}
	assert.Equal(t, []string{"a.md", "b.md"}, paths)

	data, err := os.ReadFile(filepath.Join(env.dir, "a.md"))
	require.NoError(t, err)
	assert.True(t, env.notes.OwnWrite("a.md", checksum.Sum(data)))

	parsed, err := parser.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []any{"[[b]]"}, parsed.Frontmatter[noteservice.KeyRelated])
}

func TestProcess_DryRunWithFileIncidentsIsReproducible(t *testing.T) {
	sink, err := incident.NewFileSink(filepath.Join(t.TempDir(), "incidents"), testutil.Logger())
	require.NoError(t, err)
	engine := enhance.New([]enhance.Tier{
		{Source: models.SourceLocal, Provider: staticProvider{name: "local", err: errors.New("connection refused")}},
		{Source: models.SourceRemote, Provider: staticProvider{name: "remote"}},
	}, sink, testutil.Logger(), enhance.Config{})
	env := newVaultEnv(t, engine, sink)
	o := New(env.deps, DefaultConfig())

	first := o.Process(context.Background(), "a.md", Options{DryRun: true})
	second := o.Process(context.Background(), "a.md", Options{DryRun: true})
	first.Duration, second.Duration = 0, 0

	require.Len(t, first.Incidents, 1)
	assert.True(t, first.Enhancement.UsedFallback)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcess_ZeroThresholdsAreKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CostGateThreshold = 0
	cfg.MinSimilarity = 0
	h := newHarness(fakeQuality{score: 0.1}, &fakeEnhancer{res: localResult()}, &fakeFinder{links: someLinks()}, cfg)

	res := h.orch.Process(context.Background(), "stub.md", Options{})

	assert.Equal(t, int32(1), h.enhancer.calls.Load())
	assert.Equal(t, models.SourceLocal, res.Enhancement.Source)
	assert.Zero(t, h.orch.Config().CostGateThreshold)
	assert.Zero(t, h.orch.Config().MinSimilarity)
}
