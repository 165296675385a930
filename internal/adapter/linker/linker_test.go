package linker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/adapter/format"
	"github.com/eslsoft/lexmatrix/internal/adapter/repository"
	"github.com/eslsoft/lexmatrix/internal/entity"
)

type fakeRunner struct {
	stdout string
	stderr string
	code   int
	err    error

	name   string
	args   []string
	inputs map[string]string
}

func (r *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, int, error) {
	r.name, r.args = name, args
	r.inputs = map[string]string{}
	for _, a := range args {
		if data, err := os.ReadFile(a); err == nil {
			r.inputs[filepath.Base(a)] = string(data)
		}
	}
	return []byte(r.stdout), []byte(r.stderr), r.code, r.err
}

func entry(id, lemma string, pos entity.PartOfSpeech, senses ...string) *entity.Entry {
	e := &entity.Entry{
		ID:            id,
		Type:          entity.EntryTypeLexicalEntry,
		Lemma:         lemma,
		Language:      "en",
		CanonicalForm: entity.Form{WrittenRep: entity.LangValues{"en": {lemma}}},
		PartOfSpeech:  pos,
	}
	for _, s := range senses {
		e.Senses = append(e.Senses, entity.Sense{ID: s, Definitions: map[string]string{"en": "definition of " + s}})
	}
	return e
}

func seed(t *testing.T) (*repository.DictionaryMemoryRepository, string, string) {
	t.Helper()
	repo := repository.NewDictionaryMemoryRepository()
	src, tgt := entity.NewID(), entity.NewID()
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, &entity.Dictionary{ID: src, SourceLanguage: "en", Release: entity.ReleasePublic},
		[]*entity.Entry{entry("aaaaaaaaaaaaaaaaaaaaaaa1", "cat", entity.POSNoun, "cat-n-1", "cat-n-2")}))
	require.NoError(t, repo.Replace(ctx, &entity.Dictionary{ID: tgt, SourceLanguage: "en", Release: entity.ReleasePublic},
		[]*entity.Entry{
			entry("bbbbbbbbbbbbbbbbbbbbbbb1", "feline", entity.POSNoun, "feline-1"),
			entry("bbbbbbbbbbbbbbbbbbbbbbb2", "moggy", entity.POSNoun, "moggy-1"),
		}))
	return repo, src, tgt
}

func TestEngineLink(t *testing.T) {
	repo, src, tgt := seed(t)
	logger, _ := test.NewNullLogger()
	runner := &fakeRunner{stdout: strings.Join([]string{
		"# produced by the engine",
		"<file:///tmp/source.ttl#cat-n-1> <http://www.w3.org/2004/02/skos/core#exactMatch> <file:///tmp/target.ttl#feline-1> . # 0.8000",
		"<source.ttl##cat-n-2> <http://www.w3.org/2004/02/skos/core#broadMatch> <target.ttl##moggy-1> .",
		"",
	}, "\n")}
	engine := NewEngine(Config{Executable: "naisc", Args: []string{"-q"}, Workdir: t.TempDir()}, runner, repo, nil, logger)

	links, err := engine.Link(context.Background(), &entity.LinkingJob{
		ID:     entity.NewID(),
		Source: entity.LinkingSource{ID: src},
		Target: entity.LinkingSource{ID: tgt},
	})
	require.NoError(t, err)
	assert.Equal(t, []entity.SenseLink{
		{SourceEntry: "aaaaaaaaaaaaaaaaaaaaaaa1", SourceSense: "cat-n-1", TargetEntry: "bbbbbbbbbbbbbbbbbbbbbbb1", TargetSense: "feline-1", Type: entity.LinkExact, Score: 0.8},
		{SourceEntry: "aaaaaaaaaaaaaaaaaaaaaaa1", SourceSense: "cat-n-2", TargetEntry: "bbbbbbbbbbbbbbbbbbbbbbb2", TargetSense: "moggy-1", Type: entity.LinkBroader, Score: 1},
	}, links)

	assert.Equal(t, "naisc", runner.name)
	require.Len(t, runner.args, 4)
	assert.Equal(t, "-q", runner.args[0])
	assert.Contains(t, runner.inputs["source.ttl"], "cat-n-1")
	assert.Contains(t, runner.inputs["target.ttl"], "moggy-1")
	assert.JSONEq(t, `{"configuration":"ontolex-default"}`, runner.inputs["config.json"])
}

func TestEngineLink_Subset(t *testing.T) {
	repo, src, tgt := seed(t)
	logger, _ := test.NewNullLogger()
	runner := &fakeRunner{}
	engine := NewEngine(Config{Executable: "naisc", Workdir: t.TempDir()}, runner, repo, nil, logger)

	links, err := engine.Link(context.Background(), &entity.LinkingJob{
		ID:     entity.NewID(),
		Source: entity.LinkingSource{ID: src},
		Target: entity.LinkingSource{ID: tgt, Entries: []string{"bbbbbbbbbbbbbbbbbbbbbbb2"}},
		Config: map[string]any{"configuration": "fast"},
	})
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.NotContains(t, runner.inputs["target.ttl"], "feline")
	assert.JSONEq(t, `{"configuration":"fast"}`, runner.inputs["config.json"])
}

func TestEngineLink_Failures(t *testing.T) {
	repo, src, tgt := seed(t)
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name   string
		runner *fakeRunner
		job    entity.LinkingJob
		want   string
	}{
		{
			name:   "non-zero exit",
			runner: &fakeRunner{code: 2, stderr: "loading\nout of memory\n", err: errors.New("exit status 2")},
			job:    entity.LinkingJob{Source: entity.LinkingSource{ID: src}, Target: entity.LinkingSource{ID: tgt}},
			want:   "exited with code 2: out of memory",
		},
		{
			name:   "malformed output",
			runner: &fakeRunner{stdout: "cat feline\n"},
			job:    entity.LinkingJob{Source: entity.LinkingSource{ID: src}, Target: entity.LinkingSource{ID: tgt}},
			want:   "not a linking statement",
		},
		{
			name:   "unknown sense",
			runner: &fakeRunner{stdout: "<s#nope> <skos:exactMatch> <t#feline-1> .\n"},
			job:    entity.LinkingJob{Source: entity.LinkingSource{ID: src}, Target: entity.LinkingSource{ID: tgt}},
			want:   `unknown source sense "nope"`,
		},
		{
			name:   "missing dictionary",
			runner: &fakeRunner{},
			job:    entity.LinkingJob{Source: entity.LinkingSource{ID: entity.NewID()}, Target: entity.LinkingSource{ID: tgt}},
			want:   "prepare source dictionary",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewEngine(Config{Executable: "naisc", Workdir: t.TempDir()}, tc.runner, repo, nil, logger)
			job := tc.job
			job.ID = entity.NewID()
			_, err := engine.Link(context.Background(), &job)
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrLinkingFailed)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

type fakeRemoteEntries struct {
	lemmas  []entity.Lemma
	entries map[string][]byte
	keys    []string
}

func (f *fakeRemoteEntries) List(ctx context.Context, endpoint, dictionaryID, apiKey string) ([]entity.Lemma, error) {
	f.keys = append(f.keys, apiKey)
	return f.lemmas, nil
}

func (f *fakeRemoteEntries) Entry(ctx context.Context, endpoint string, ef entity.ExportFormat, dictionaryID, entryID, apiKey string) ([]byte, error) {
	data, ok := f.entries[entryID]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return data, nil
}

func TestEngineLink_RemoteTarget(t *testing.T) {
	repo, src, _ := seed(t)
	logger, _ := test.NewNullLogger()

	remoteID := "cccccccccccccccccccccccc"
	var doc strings.Builder
	require.NoError(t, format.SerializeEntry(&doc, entity.ExportOntolex, nil, entry(remoteID, "kitty", entity.POSNoun, "kitty-1")))
	remote := &fakeRemoteEntries{
		lemmas:  []entity.Lemma{{ID: remoteID, Lemma: "kitty"}},
		entries: map[string][]byte{remoteID: []byte(doc.String())},
	}
	runner := &fakeRunner{stdout: "<a##cat-n-1> <http://www.w3.org/2004/02/skos/core#closeMatch> <b##kitty-1> . # 0.5\n"}
	engine := NewEngine(Config{Executable: "naisc", Workdir: t.TempDir()}, runner, repo, remote, logger)

	links, err := engine.Link(context.Background(), &entity.LinkingJob{
		ID:     entity.NewID(),
		Source: entity.LinkingSource{ID: src},
		Target: entity.LinkingSource{Endpoint: "https://dict.example.org", ID: "remote-dict", APIKey: "secret"},
	})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, remoteID, links[0].TargetEntry)
	assert.Equal(t, entity.LinkRelated, links[0].Type)
	assert.InDelta(t, 0.5, links[0].Score, 1e-9)
	assert.Equal(t, []string{"secret"}, remote.keys)
	assert.Contains(t, runner.inputs["target.ttl"], "kitty")
}

func TestParseOutput_Scores(t *testing.T) {
	idx := senseIndex{"s": "e1", "t": "e2"}
	for _, line := range []string{
		"<x#s> <skos:exactMatch> <y#t> . # 1.5",
		"<x#s> <skos:exactMatch> <y#t> . # -0.1",
		"<x#s> <skos:sameAs> <y#t> .",
	} {
		_, err := parseOutput([]byte(line), idx, idx)
		assert.Error(t, err, line)
	}
}
