package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eslsoft/lexmatrix/internal/adapter/format"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

// ImportRequest describes one document import. Exactly one of Body and URL is set. Request
// metadata wins over metadata found in the document.
type ImportRequest struct {
	Body            io.Reader
	URL             string
	Format          format.Format
	TargetID        string
	Release         string
	SourceLanguage  string
	TargetLanguages []string
	Genres          []string
}

// RemoteImportRequest pulls a dictionary from another instance of the service.
type RemoteImportRequest struct {
	Endpoint     string
	DictionaryID string
	APIKey       string
	TargetID     string
}

// RemoteSource is the network side of URL and API imports.
type RemoteSource interface {
	Fetch(ctx context.Context, rawURL, apiKey string) ([]byte, error)
	About(ctx context.Context, endpoint, dictionaryID, apiKey string) (*entity.Dictionary, error)
	List(ctx context.Context, endpoint, dictionaryID, apiKey string) ([]entity.Lemma, error)
	Entry(ctx context.Context, endpoint string, f entity.ExportFormat, dictionaryID, entryID, apiKey string) ([]byte, error)
}

// DictionaryUsecase imports, queries and exports dictionaries.
type DictionaryUsecase interface {
	Import(ctx context.Context, req *ImportRequest) (*entity.Dictionary, error)
	ImportRemote(ctx context.Context, req *RemoteImportRequest) (*entity.Dictionary, error)
	ListDictionaries(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, id string) (*entity.Dictionary, error)
	ListEntries(ctx context.Context, query *repository.ListEntriesQuery) ([]entity.Lemma, error)
	Lookup(ctx context.Context, query *repository.HeadwordQuery) ([]entity.Lemma, error)
	ExportEntry(ctx context.Context, dictionaryID, entryID string, f entity.ExportFormat, w io.Writer) error
	ExportDictionary(ctx context.Context, dictionaryID string, f entity.ExportFormat, w io.Writer) error
}

const (
	_defaultMaxBytes     = 256 << 20
	_remoteFetchParallel = 8
)

// remoteFormatPreference orders the formats tried for API imports.
var remoteFormatPreference = []entity.ExportFormat{entity.ExportJSON, entity.ExportOntolex, entity.ExportTEI}

type dictionaryUsecase struct {
	repo     repository.DictionaryRepository
	remote   RemoteSource
	logger   logrus.FieldLogger
	maxBytes int64
	now      func() time.Time
}

// DictionaryOption customizes the dictionary usecase.
type DictionaryOption func(*dictionaryUsecase)

// WithMaxBytes caps the size of uploaded documents.
func WithMaxBytes(n int64) DictionaryOption {
	return func(u *dictionaryUsecase) {
		if n > 0 {
			u.maxBytes = n
		}
	}
}

// WithClock overrides the import timestamp source.
func WithClock(now func() time.Time) DictionaryOption {
	return func(u *dictionaryUsecase) {
		if now != nil {
			u.now = now
		}
	}
}

func NewDictionaryUsecase(repo repository.DictionaryRepository, remote RemoteSource, logger logrus.FieldLogger, opts ...DictionaryOption) DictionaryUsecase {
	u := &dictionaryUsecase{
		repo:     repo,
		remote:   remote,
		logger:   logger,
		maxBytes: _defaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *dictionaryUsecase) Import(ctx context.Context, req *ImportRequest) (*entity.Dictionary, error) {
	if req == nil {
		return nil, &entity.ValidationError{Msg: "import request is required"}
	}

	var data []byte
	switch {
	case req.URL != "":
		fetched, err := u.remote.Fetch(ctx, req.URL, "")
		if err != nil {
			var ve *entity.ValidationError
			if errors.As(err, &ve) {
				return nil, err
			}
			return nil, &entity.ValidationError{Field: "url", Msg: err.Error()}
		}
		data = fetched
	case req.Body != nil:
		read, err := io.ReadAll(io.LimitReader(req.Body, u.maxBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if int64(len(read)) > u.maxBytes {
			return nil, &entity.ValidationError{Field: "file", Msg: fmt.Sprintf("document exceeds %d bytes", u.maxBytes)}
		}
		data = read
	default:
		return nil, &entity.ValidationError{Field: "file", Msg: "either a file or a url is required"}
	}

	doc, err := format.Parse(bytes.NewReader(data), format.Options{Format: req.Format, Language: req.SourceLanguage})
	if err != nil {
		return nil, err
	}
	if err := overlayRequest(doc.Dictionary, req); err != nil {
		return nil, err
	}
	return u.store(ctx, doc.Dictionary, doc.Entries, req.TargetID)
}

func overlayRequest(dict *entity.Dictionary, req *ImportRequest) error {
	if strings.TrimSpace(req.Release) != "" {
		release, err := entity.ParseReleasePolicy(req.Release)
		if err != nil {
			return err
		}
		dict.Release = release
	}
	if len(req.TargetLanguages) > 0 {
		langs := make([]string, 0, len(req.TargetLanguages))
		for _, raw := range req.TargetLanguages {
			lang, err := entity.NormalizeLanguage(raw)
			if err != nil {
				return &entity.ValidationError{Field: "targetLanguage", Msg: err.Error()}
			}
			langs = append(langs, lang)
		}
		dict.TargetLanguages = lo.Uniq(langs)
	}
	if len(req.Genres) > 0 {
		genres := make([]entity.Genre, 0, len(req.Genres))
		for _, raw := range req.Genres {
			g, err := entity.ParseGenre(raw)
			if err != nil {
				return err
			}
			genres = append(genres, g)
		}
		dict.Genres = lo.Uniq(genres)
	}
	return nil
}

func (u *dictionaryUsecase) ImportRemote(ctx context.Context, req *RemoteImportRequest) (*entity.Dictionary, error) {
	if req == nil || strings.TrimSpace(req.Endpoint) == "" {
		return nil, &entity.ValidationError{Field: "url", Msg: "remote endpoint is required"}
	}
	if strings.TrimSpace(req.DictionaryID) == "" {
		return nil, &entity.ValidationError{Field: "remote_dictionary", Msg: "remote dictionary id is required"}
	}
	log := u.logger.WithFields(logrus.Fields{"endpoint": req.Endpoint, "remote_dictionary": req.DictionaryID})

	meta, err := u.remote.About(ctx, req.Endpoint, req.DictionaryID, req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("fetch remote metadata: %w", err)
	}
	lemmas, err := u.remote.List(ctx, req.Endpoint, req.DictionaryID, req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("fetch remote entry list: %w", err)
	}
	lemmas = lo.Filter(lemmas, func(l entity.Lemma, _ int) bool {
		return l.Release == "" || l.Release == entity.ReleasePublic
	})

	lang := meta.SourceLanguage
	if lang != "" {
		if lang, err = entity.NormalizeLanguage(lang); err != nil {
			return nil, &entity.ValidationError{Field: "sourceLanguage", Msg: err.Error()}
		}
	}

	fetched := make([][]*entity.Entry, len(lemmas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(_remoteFetchParallel)
	for i, l := range lemmas {
		g.Go(func() error {
			entries, err := u.fetchRemoteEntry(gctx, req, l, lang)
			if err != nil {
				return fmt.Errorf("remote entry %s: %w", l.ID, err)
			}
			fetched[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dict := meta.Clone()
	dict.SourceLanguage = lang
	dict.Origin = &entity.Origin{Endpoint: req.Endpoint, DictionaryID: req.DictionaryID}
	entries := lo.Flatten(fetched)
	log.WithField("entries", len(entries)).Info("remote dictionary fetched")
	return u.store(ctx, dict, entries, req.TargetID)
}

func (u *dictionaryUsecase) fetchRemoteEntry(ctx context.Context, req *RemoteImportRequest, l entity.Lemma, lang string) ([]*entity.Entry, error) {
	f := pickRemoteFormat(l.Formats)
	data, err := u.remote.Entry(ctx, req.Endpoint, f, req.DictionaryID, l.ID, req.APIKey)
	if err != nil {
		return nil, err
	}
	in := format.FormatJSON
	switch f {
	case entity.ExportOntolex:
		in = format.FormatTurtle
	case entity.ExportTEI:
		in = format.FormatTEI
	}
	doc, err := format.Parse(bytes.NewReader(data), format.Options{Format: in, Language: lang})
	if err != nil {
		return nil, err
	}
	for _, e := range doc.Entries {
		e.ID = ""
		e.OriginID = l.ID
	}
	return doc.Entries, nil
}

func pickRemoteFormat(offered []entity.ExportFormat) entity.ExportFormat {
	for _, f := range remoteFormatPreference {
		if len(offered) == 0 || lo.Contains(offered, f) {
			return f
		}
	}
	return offered[0]
}

// store validates the normalized dictionary, assigns ids and replaces the stored copy.
func (u *dictionaryUsecase) store(ctx context.Context, dict *entity.Dictionary, entries []*entity.Entry, targetID string) (*entity.Dictionary, error) {
	if err := validateDictionary(dict, entries); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(targetID)
	if id != "" {
		if !entity.ValidID(id) {
			return nil, fmt.Errorf("%w: %q", entity.ErrInvalidID, id)
		}
		if _, err := u.repo.Get(ctx, id); err != nil {
			return nil, err
		}
		keys, err := u.repo.EntryKeys(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load entry keys: %w", err)
		}
		transferIDs(keys, entries)
	} else {
		id = entity.NewID()
	}

	for _, e := range entries {
		if e.ID == "" {
			e.ID = entity.NewID()
		}
	}
	dict.ID = id
	dict.EntryCount = len(entries)
	dict.ImportedAt = u.now().UTC()

	if err := u.repo.Replace(ctx, dict, entries); err != nil {
		return nil, fmt.Errorf("store dictionary: %w", err)
	}
	u.logger.WithFields(logrus.Fields{
		"dictionary": id,
		"entries":    len(entries),
		"language":   dict.SourceLanguage,
		"replaced":   targetID != "",
	}).Info("dictionary imported")
	return dict, nil
}

func validateDictionary(dict *entity.Dictionary, entries []*entity.Entry) error {
	if dict.Release == "" {
		return &entity.ValidationError{Field: "release", Msg: "release policy is required"}
	}
	if dict.SourceLanguage == "" {
		return &entity.ValidationError{Field: "sourceLanguage", Msg: "source language is required and could not be detected"}
	}
	seen := map[string]string{}
	for _, e := range entries {
		if e.CanonicalForm.WrittenRep.Empty() {
			return &entity.ValidationError{Field: "entries", Msg: fmt.Sprintf("entry %q has no written form", e.OriginID)}
		}
		if !e.PartOfSpeech.Valid() {
			return &entity.ValidationError{Field: "entries", Msg: fmt.Sprintf("entry %q has invalid part of speech %q", e.OriginID, e.PartOfSpeech)}
		}
		for _, s := range e.Senses {
			if s.ID == "" {
				continue
			}
			if other, dup := seen[s.ID]; dup {
				return &entity.ValidationError{Field: "senses", Msg: fmt.Sprintf("sense id %q used by entries %q and %q", s.ID, other, e.OriginID)}
			}
			seen[s.ID] = e.OriginID
		}
	}
	return nil
}

// transferIDs keeps entry ids stable across re-imports. Entries match on lemma, part of speech
// and the occurrence count of that pair.
func transferIDs(old []repository.EntryKey, entries []*entity.Entry) {
	type key struct {
		lemma string
		pos   entity.PartOfSpeech
		n     int
	}
	counter := map[key]int{}
	next := func(lemma string, pos entity.PartOfSpeech) key {
		k := key{lemma: lemma, pos: pos}
		counter[k]++
		k.n = counter[k]
		return k
	}

	byKey := make(map[key]string, len(old))
	for _, k := range old {
		byKey[next(k.Lemma, k.PartOfSpeech)] = k.ID
	}
	clear(counter)
	for _, e := range entries {
		if id, ok := byKey[next(e.Lemma, e.PartOfSpeech)]; ok {
			e.ID = id
		}
	}
}

func (u *dictionaryUsecase) ListDictionaries(ctx context.Context) ([]string, error) {
	ids, err := u.repo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (u *dictionaryUsecase) Describe(ctx context.Context, id string) (*entity.Dictionary, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return u.repo.Get(ctx, id)
}

func (u *dictionaryUsecase) ListEntries(ctx context.Context, query *repository.ListEntriesQuery) ([]entity.Lemma, error) {
	if query == nil {
		return nil, &entity.ValidationError{Msg: "query is required"}
	}
	if err := checkID(query.DictionaryID); err != nil {
		return nil, err
	}
	entries, err := u.repo.ListEntries(ctx, query)
	if err != nil {
		return nil, err
	}
	return summaries(entries), nil
}

func (u *dictionaryUsecase) Lookup(ctx context.Context, query *repository.HeadwordQuery) ([]entity.Lemma, error) {
	if query == nil {
		return nil, &entity.ValidationError{Msg: "query is required"}
	}
	if err := checkID(query.DictionaryID); err != nil {
		return nil, err
	}
	q := *query
	q.Headword = strings.TrimSpace(q.Headword)
	if q.Headword == "" {
		return nil, &entity.ValidationError{Field: "headword", Msg: "headword is required"}
	}
	if q.PartOfSpeech != "" {
		pos, err := entity.ParsePartOfSpeech(string(q.PartOfSpeech))
		if err != nil {
			return nil, &entity.ValidationError{Field: "partOfSpeech", Msg: err.Error()}
		}
		q.PartOfSpeech = pos
	}
	entries, err := u.repo.FindByHeadword(ctx, &q)
	if err != nil {
		return nil, err
	}
	return summaries(entries), nil
}

func (u *dictionaryUsecase) ExportEntry(ctx context.Context, dictionaryID, entryID string, f entity.ExportFormat, w io.Writer) error {
	if err := checkID(dictionaryID); err != nil {
		return err
	}
	if err := checkID(entryID); err != nil {
		return err
	}
	dict, err := u.repo.Get(ctx, dictionaryID)
	if err != nil {
		return err
	}
	e, err := u.repo.GetEntry(ctx, dictionaryID, entryID)
	if err != nil {
		return err
	}
	return format.SerializeEntry(w, f, dict, e)
}

func (u *dictionaryUsecase) ExportDictionary(ctx context.Context, dictionaryID string, f entity.ExportFormat, w io.Writer) error {
	if err := checkID(dictionaryID); err != nil {
		return err
	}
	dict, entries, err := u.repo.GetWithEntries(ctx, dictionaryID)
	if err != nil {
		return err
	}
	return format.Serialize(w, f, dict, entries)
}

func checkID(id string) error {
	if !entity.ValidID(id) {
		return fmt.Errorf("%w: %q", entity.ErrInvalidID, id)
	}
	return nil
}

func summaries(entries []*entity.Entry) []entity.Lemma {
	return lo.Map(entries, func(e *entity.Entry, _ int) entity.Lemma { return e.Summary() })
}
