package linker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eslsoft/lexmatrix/internal/adapter/format"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

// DefaultConfig is handed to the engine when a job carries no configuration.
var DefaultConfig = map[string]any{"configuration": "ontolex-default"}

// RemoteEntries reads dictionaries served by another instance.
type RemoteEntries interface {
	List(ctx context.Context, endpoint, dictionaryID, apiKey string) ([]entity.Lemma, error)
	Entry(ctx context.Context, endpoint string, f entity.ExportFormat, dictionaryID, entryID, apiKey string) ([]byte, error)
}

// Config locates the engine binary and its scratch space.
type Config struct {
	Executable string
	Args       []string
	Workdir    string
}

// Engine runs an external linking engine over two dictionaries written out as OntoLex Turtle.
type Engine struct {
	cfg    Config
	runner CommandRunner
	dicts  repository.DictionaryRepository
	remote RemoteEntries
	logger logrus.FieldLogger
}

func NewEngine(cfg Config, runner CommandRunner, dicts repository.DictionaryRepository, remote RemoteEntries, logger logrus.FieldLogger) *Engine {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Engine{cfg: cfg, runner: runner, dicts: dicts, remote: remote, logger: logger}
}

// Link materializes both sides, runs the engine and maps its statements back onto entries.
// Every failure is reported as *entity.LinkingFailure.
func (e *Engine) Link(ctx context.Context, job *entity.LinkingJob) ([]entity.SenseLink, error) {
	log := e.logger.WithField("job", job.ID)

	if e.cfg.Workdir != "" {
		if err := os.MkdirAll(e.cfg.Workdir, 0o755); err != nil {
			return nil, &entity.LinkingFailure{Msg: "create linking workdir", Err: err}
		}
	}
	dir, err := os.MkdirTemp(e.cfg.Workdir, "link-"+job.ID+"-")
	if err != nil {
		return nil, &entity.LinkingFailure{Msg: "create job directory", Err: err}
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, "source.ttl")
	source, err := e.materialize(ctx, job.Source, sourcePath)
	if err != nil {
		return nil, &entity.LinkingFailure{Msg: "prepare source dictionary", Err: err}
	}
	targetPath := filepath.Join(dir, "target.ttl")
	target, err := e.materialize(ctx, job.Target, targetPath)
	if err != nil {
		return nil, &entity.LinkingFailure{Msg: "prepare target dictionary", Err: err}
	}

	cfg := job.Config
	if len(cfg) == 0 {
		cfg = DefaultConfig
	}
	configPath := filepath.Join(dir, "config.json")
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, &entity.LinkingFailure{Msg: "encode engine configuration", Err: err}
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return nil, &entity.LinkingFailure{Msg: "write engine configuration", Err: err}
	}

	args := append(append([]string{}, e.cfg.Args...), sourcePath, targetPath, configPath)
	start := time.Now()
	stdout, stderr, code, err := e.runner.Run(ctx, dir, e.cfg.Executable, args...)
	log.WithFields(logrus.Fields{
		"exit_code": code,
		"duration":  time.Since(start),
		"senses":    fmt.Sprintf("%d/%d", len(source), len(target)),
	}).Info("linking engine finished")
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || code != 0 {
		msg := fmt.Sprintf("linking engine exited with code %d", code)
		if tail := lastLine(stderr); tail != "" {
			msg += ": " + tail
		}
		return nil, &entity.LinkingFailure{Msg: msg, Err: err}
	}

	links, err := parseOutput(stdout, source, target)
	if err != nil {
		return nil, &entity.LinkingFailure{Msg: "malformed linking engine output", Err: err}
	}
	return links, nil
}

// materialize writes one side as Turtle to path and indexes its senses.
func (e *Engine) materialize(ctx context.Context, side entity.LinkingSource, path string) (senseIndex, error) {
	var (
		entries []*entity.Entry
		err     error
	)
	if side.Remote() {
		entries, err = e.remoteEntries(ctx, side)
	} else {
		entries, err = e.dicts.GetEntries(ctx, side.ID, nilIfEmpty(side.Entries))
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := format.Serialize(&buf, entity.ExportOntolex, nil, entries); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	idx := senseIndex{}
	for _, entry := range entries {
		idx.add(entry)
	}
	return idx, nil
}

const _remoteFetchParallel = 8

// remoteEntries downloads the side's entries as OntoLex; entry ids stay those of the remote side.
func (e *Engine) remoteEntries(ctx context.Context, side entity.LinkingSource) ([]*entity.Entry, error) {
	ids := side.Entries
	if len(ids) == 0 {
		lemmas, err := e.remote.List(ctx, side.Endpoint, side.ID, side.APIKey)
		if err != nil {
			return nil, fmt.Errorf("list remote entries: %w", err)
		}
		for _, l := range lemmas {
			ids = append(ids, l.ID)
		}
	}

	fetched := make([][]*entity.Entry, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(_remoteFetchParallel)
	for i, id := range ids {
		g.Go(func() error {
			data, err := e.remote.Entry(gctx, side.Endpoint, entity.ExportOntolex, side.ID, id, side.APIKey)
			if err != nil {
				return fmt.Errorf("remote entry %s: %w", id, err)
			}
			doc, err := format.Parse(bytes.NewReader(data), format.Options{Format: format.FormatTurtle})
			if err != nil {
				return fmt.Errorf("remote entry %s: %w", id, err)
			}
			for _, entry := range doc.Entries {
				entry.ID = id
			}
			fetched[i] = doc.Entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*entity.Entry
	for _, entries := range fetched {
		out = append(out, entries...)
	}
	return out, nil
}

func nilIfEmpty(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
