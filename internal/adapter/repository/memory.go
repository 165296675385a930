package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
	"github.com/samber/lo"
)

type memoryDictionary struct {
	dict    *entity.Dictionary
	entries []*entity.Entry
	byID    map[string]int
}

// DictionaryMemoryRepository keeps dictionaries in process memory. Replace swaps a whole
// snapshot under the write lock, so readers never see a partial import.
type DictionaryMemoryRepository struct {
	mu    sync.RWMutex
	dicts map[string]*memoryDictionary
}

// NewDictionaryMemoryRepository constructs an empty in-memory store.
func NewDictionaryMemoryRepository() *DictionaryMemoryRepository {
	return &DictionaryMemoryRepository{dicts: map[string]*memoryDictionary{}}
}

var _ repository.DictionaryRepository = (*DictionaryMemoryRepository)(nil)

func (r *DictionaryMemoryRepository) Replace(ctx context.Context, dict *entity.Dictionary, entries []*entity.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := &memoryDictionary{
		dict:    dict.Clone(),
		entries: make([]*entity.Entry, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	snapshot.dict.EntryCount = len(entries)
	for i, e := range entries {
		snapshot.entries[i] = e.Clone()
		snapshot.byID[e.ID] = i
	}

	r.mu.Lock()
	r.dicts[dict.ID] = snapshot
	r.mu.Unlock()
	return nil
}

func (r *DictionaryMemoryRepository) snapshot(id string) (*memoryDictionary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dicts[id]
	if !ok {
		return nil, entity.ErrDictionaryNotFound
	}
	return d, nil
}

func (r *DictionaryMemoryRepository) Get(ctx context.Context, id string) (*entity.Dictionary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := r.snapshot(id)
	if err != nil {
		return nil, err
	}
	return d.dict.Clone(), nil
}

func (r *DictionaryMemoryRepository) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := lo.Keys(r.dicts)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (r *DictionaryMemoryRepository) ListEntries(ctx context.Context, query *repository.ListEntriesQuery) ([]*entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params, err := bindListEntries(&query.FilterOrder)
	if err != nil {
		return nil, err
	}
	d, err := r.snapshot(query.DictionaryID)
	if err != nil {
		return nil, err
	}

	type positioned struct {
		pos   int
		entry *entity.Entry
	}
	var matched []positioned
	for i, e := range d.entries {
		if params.match(e) {
			matched = append(matched, positioned{pos: i, entry: e})
		}
	}

	less := func(key string, desc bool, a, b positioned) (bool, bool) {
		var c int
		switch key {
		case "lemma":
			switch {
			case a.entry.Lemma < b.entry.Lemma:
				c = -1
			case a.entry.Lemma > b.entry.Lemma:
				c = 1
			}
		default:
			c = a.pos - b.pos
		}
		if desc {
			c = -c
		}
		return c < 0, c != 0
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if l, decided := less(params.PrimaryKey, params.PrimaryDesc, matched[i], matched[j]); decided {
			return l
		}
		l, _ := less(params.SecondaryKey, params.SecondaryDesc, matched[i], matched[j])
		return l
	})

	start, end := query.Window(len(matched))
	return lo.Map(matched[start:end], func(p positioned, _ int) *entity.Entry { return p.entry.Clone() }), nil
}

func (r *DictionaryMemoryRepository) GetEntry(ctx context.Context, dictionaryID, entryID string) (*entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := r.snapshot(dictionaryID)
	if err != nil {
		return nil, err
	}
	i, ok := d.byID[entryID]
	if !ok {
		return nil, entity.ErrEntryNotFound
	}
	return d.entries[i].Clone(), nil
}

func (r *DictionaryMemoryRepository) GetEntries(ctx context.Context, dictionaryID string, entryIDs []string) ([]*entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := r.snapshot(dictionaryID)
	if err != nil {
		return nil, err
	}
	if entryIDs == nil {
		return lo.Map(d.entries, func(e *entity.Entry, _ int) *entity.Entry { return e.Clone() }), nil
	}
	positions := make([]int, 0, len(entryIDs))
	for _, id := range uniqueStrings(entryIDs) {
		i, ok := d.byID[id]
		if !ok {
			return nil, entity.ErrEntryNotFound
		}
		positions = append(positions, i)
	}
	sort.Ints(positions)
	return lo.Map(positions, func(i int, _ int) *entity.Entry { return d.entries[i].Clone() }), nil
}

func (r *DictionaryMemoryRepository) GetWithEntries(ctx context.Context, id string) (*entity.Dictionary, []*entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	d, err := r.snapshot(id)
	if err != nil {
		return nil, nil, err
	}
	return d.dict.Clone(), lo.Map(d.entries, func(e *entity.Entry, _ int) *entity.Entry { return e.Clone() }), nil
}

func (r *DictionaryMemoryRepository) FindByHeadword(ctx context.Context, query *repository.HeadwordQuery) ([]*entity.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := r.snapshot(query.DictionaryID)
	if err != nil {
		return nil, err
	}
	matched := lo.Filter(d.entries, func(e *entity.Entry, _ int) bool {
		if query.PartOfSpeech != "" && e.PartOfSpeech != query.PartOfSpeech {
			return false
		}
		if e.Lemma == query.Headword {
			return true
		}
		return query.Inflected && lo.Contains(e.InflectedForms(), query.Headword)
	})
	start, end := query.Window(len(matched))
	return lo.Map(matched[start:end], func(e *entity.Entry, _ int) *entity.Entry { return e.Clone() }), nil
}

func (r *DictionaryMemoryRepository) EntryKeys(ctx context.Context, dictionaryID string) ([]repository.EntryKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	d, ok := r.dicts[dictionaryID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return lo.Map(d.entries, func(e *entity.Entry, _ int) repository.EntryKey {
		return repository.EntryKey{ID: e.ID, Lemma: e.Lemma, PartOfSpeech: e.PartOfSpeech}
	}), nil
}

// LinkingJobMemoryRepository keeps linking jobs in process memory.
type LinkingJobMemoryRepository struct {
	mu   sync.Mutex
	jobs map[string]*entity.LinkingJob
	now  func() time.Time
}

// NewLinkingJobMemoryRepository constructs an empty in-memory job store.
func NewLinkingJobMemoryRepository() *LinkingJobMemoryRepository {
	return &LinkingJobMemoryRepository{jobs: map[string]*entity.LinkingJob{}, now: time.Now}
}

var _ repository.LinkingJobRepository = (*LinkingJobMemoryRepository)(nil)

func (r *LinkingJobMemoryRepository) Create(ctx context.Context, job *entity.LinkingJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return &entity.ValidationError{Field: "id", Msg: "linking job already exists"}
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *LinkingJobMemoryRepository) Get(ctx context.Context, id string) (*entity.LinkingJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (r *LinkingJobMemoryRepository) Finish(ctx context.Context, id string, state entity.LinkingState, message string, result []entity.SenseLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return entity.ErrJobNotFound
	}
	if job.State != entity.LinkingProcessing {
		return entity.ErrJobFinished
	}
	job.State = state
	job.Message = message
	job.Result = append([]entity.SenseLink(nil), result...)
	job.UpdatedAt = r.now().UTC()
	return nil
}

func (r *LinkingJobMemoryRepository) ListPending(ctx context.Context) ([]*entity.LinkingJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]*entity.LinkingJob, 0)
	for _, job := range r.jobs {
		if job.State == entity.LinkingProcessing {
			pending = append(pending, cloneJob(job))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func cloneJob(job *entity.LinkingJob) *entity.LinkingJob {
	out := *job
	out.Source.Entries = append([]string(nil), job.Source.Entries...)
	out.Target.Entries = append([]string(nil), job.Target.Entries...)
	out.Result = append([]entity.SenseLink(nil), job.Result...)
	if job.Config != nil {
		out.Config = make(map[string]any, len(job.Config))
		for k, v := range job.Config {
			out.Config[k] = v
		}
	}
	return &out
}
