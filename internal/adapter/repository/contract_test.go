package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

func testEntry(id, lemma string, pos entity.PartOfSpeech, forms ...string) *entity.Entry {
	e := &entity.Entry{
		ID:            id,
		Type:          entity.EntryTypeLexicalEntry,
		Lemma:         lemma,
		Language:      "en",
		CanonicalForm: entity.Form{WrittenRep: entity.LangValues{"en": {lemma}}},
		PartOfSpeech:  pos,
		Senses: []entity.Sense{{
			ID:          id + "-s",
			Definitions: map[string]string{"en": "definition of " + lemma},
		}},
	}
	for _, f := range forms {
		e.OtherForms = append(e.OtherForms, entity.Form{WrittenRep: entity.LangValues{"en": {f}}})
	}
	return e
}

func testDictionary(id string) *entity.Dictionary {
	return &entity.Dictionary{
		ID:             id,
		Release:        entity.ReleasePublic,
		SourceLanguage: "en",
		Title:          "Test dictionary",
		Creators:       entity.Attributions{entity.NameAttribution("Jane Doe")},
		Genres:         []entity.Genre{entity.GenreGeneral},
		ImportedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func seedEntries() []*entity.Entry {
	return []*entity.Entry{
		testEntry("aaaaaaaaaaaaaaaaaaaaaa01", "cat", entity.POSNoun, "cats"),
		testEntry("aaaaaaaaaaaaaaaaaaaaaa02", "cat", entity.POSVerb, "cats", "catted"),
		testEntry("aaaaaaaaaaaaaaaaaaaaaa03", "dog", entity.POSNoun, "dogs"),
		testEntry("aaaaaaaaaaaaaaaaaaaaaa04", "bird", entity.POSNoun, "birds"),
		testEntry("aaaaaaaaaaaaaaaaaaaaaa05", "run", entity.POSVerb, "ran", "runs"),
	}
}

func lemmas(entries []*entity.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Lemma
	}
	return out
}

func runDictionaryContract(t *testing.T, repo repository.DictionaryRepository) {
	ctx := context.Background()
	const dictID = "0123456789abcdef01234567"
	require.NoError(t, repo.Replace(ctx, testDictionary(dictID), seedEntries()))

	t.Run("get", func(t *testing.T) {
		dict, err := repo.Get(ctx, dictID)
		require.NoError(t, err)
		assert.Equal(t, dictID, dict.ID)
		assert.Equal(t, 5, dict.EntryCount)
		assert.Equal(t, "Jane Doe", dict.Creators[0].Name)

		_, err = repo.Get(ctx, "ffffffffffffffffffffffff")
		assert.True(t, errors.Is(err, entity.ErrNotFound))
	})

	t.Run("list ids", func(t *testing.T) {
		ids, err := repo.ListIDs(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, dictID)
	})

	t.Run("pagination", func(t *testing.T) {
		for _, tc := range []struct {
			offset int
			limit  *int
			want   int
		}{
			{0, nil, 5},
			{3, nil, 2},
			{0, lo.ToPtr(0), 0},
			{2, lo.ToPtr(0), 0},
			{0, lo.ToPtr(2), 2},
			{4, lo.ToPtr(2), 1},
			{5, lo.ToPtr(2), 0},
			{9, lo.ToPtr(3), 0},
		} {
			got, err := repo.ListEntries(ctx, &repository.ListEntriesQuery{
				DictionaryID: dictID,
				Pagination:   repository.Pagination{Offset: tc.offset, Limit: tc.limit},
			})
			require.NoError(t, err)
			assert.Len(t, got, tc.want, "offset=%d limit=%v", tc.offset, lo.FromPtr(tc.limit))
		}
	})

	t.Run("filter and order", func(t *testing.T) {
		got, err := repo.ListEntries(ctx, &repository.ListEntriesQuery{
			DictionaryID: dictID,
			FilterOrder:  repository.FilterOrder{Filter: "partOfSpeech == 'noun'", OrderBy: "lemma desc"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"dog", "cat", "bird"}, lemmas(got))

		got, err = repo.ListEntries(ctx, &repository.ListEntriesQuery{
			DictionaryID: dictID,
			FilterOrder:  repository.FilterOrder{Filter: "lemma.startsWith('c') && partOfSpeech in ['VERB']"},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, entity.POSVerb, got[0].PartOfSpeech)

		_, err = repo.ListEntries(ctx, &repository.ListEntriesQuery{
			DictionaryID: dictID,
			FilterOrder:  repository.FilterOrder{Filter: "partOfSpeech == 'gerundive-thing'"},
		})
		assert.True(t, errors.Is(err, entity.ErrValidation))
	})

	t.Run("get entry", func(t *testing.T) {
		e, err := repo.GetEntry(ctx, dictID, "aaaaaaaaaaaaaaaaaaaaaa03")
		require.NoError(t, err)
		assert.Equal(t, "dog", e.Lemma)
		assert.Equal(t, "definition of dog", e.Senses[0].Definitions["en"])

		_, err = repo.GetEntry(ctx, dictID, "bbbbbbbbbbbbbbbbbbbbbbbb")
		assert.True(t, errors.Is(err, entity.ErrEntryNotFound))
	})

	t.Run("get entries keeps dictionary order", func(t *testing.T) {
		got, err := repo.GetEntries(ctx, dictID, []string{"aaaaaaaaaaaaaaaaaaaaaa05", "aaaaaaaaaaaaaaaaaaaaaa01"})
		require.NoError(t, err)
		assert.Equal(t, []string{"cat", "run"}, lemmas(got))

		all, err := repo.GetEntries(ctx, dictID, nil)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		_, err = repo.GetEntries(ctx, dictID, []string{"bbbbbbbbbbbbbbbbbbbbbbbb"})
		assert.True(t, errors.Is(err, entity.ErrEntryNotFound))
	})

	t.Run("get with entries", func(t *testing.T) {
		dict, entries, err := repo.GetWithEntries(ctx, dictID)
		require.NoError(t, err)
		assert.Equal(t, dictID, dict.ID)
		assert.Equal(t, dict.EntryCount, len(entries))
		assert.Equal(t, "cat", entries[0].Lemma)

		_, _, err = repo.GetWithEntries(ctx, "ffffffffffffffffffffffff")
		assert.True(t, errors.Is(err, entity.ErrDictionaryNotFound))
	})

	t.Run("headword lookup", func(t *testing.T) {
		got, err := repo.FindByHeadword(ctx, &repository.HeadwordQuery{DictionaryID: dictID, Headword: "cat"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = repo.FindByHeadword(ctx, &repository.HeadwordQuery{DictionaryID: dictID, Headword: "cat", PartOfSpeech: entity.POSVerb})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaa02", got[0].ID)

		got, err = repo.FindByHeadword(ctx, &repository.HeadwordQuery{DictionaryID: dictID, Headword: "ran"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = repo.FindByHeadword(ctx, &repository.HeadwordQuery{DictionaryID: dictID, Headword: "ran", Inflected: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"run"}, lemmas(got))

		got, err = repo.FindByHeadword(ctx, &repository.HeadwordQuery{DictionaryID: dictID, Headword: "cats", Inflected: true})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("replace is idempotent", func(t *testing.T) {
		require.NoError(t, repo.Replace(ctx, testDictionary(dictID), seedEntries()))
		require.NoError(t, repo.Replace(ctx, testDictionary(dictID), seedEntries()))
		all, err := repo.GetEntries(ctx, dictID, nil)
		require.NoError(t, err)
		assert.Len(t, all, 5)
		ids, err := repo.ListIDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("replace supersedes content", func(t *testing.T) {
		dict := testDictionary(dictID)
		dict.Title = "Second edition"
		require.NoError(t, repo.Replace(ctx, dict, seedEntries()[:2]))

		got, err := repo.Get(ctx, dictID)
		require.NoError(t, err)
		assert.Equal(t, "Second edition", got.Title)
		assert.Equal(t, 2, got.EntryCount)

		keys, err := repo.EntryKeys(ctx, dictID)
		require.NoError(t, err)
		assert.Equal(t, []repository.EntryKey{
			{ID: "aaaaaaaaaaaaaaaaaaaaaa01", Lemma: "cat", PartOfSpeech: entity.POSNoun},
			{ID: "aaaaaaaaaaaaaaaaaaaaaa02", Lemma: "cat", PartOfSpeech: entity.POSVerb},
		}, keys)

		_, err = repo.GetEntry(ctx, dictID, "aaaaaaaaaaaaaaaaaaaaaa03")
		assert.True(t, errors.Is(err, entity.ErrEntryNotFound))

		got, entries, err := repo.GetWithEntries(ctx, dictID)
		require.NoError(t, err)
		assert.Equal(t, "Second edition", got.Title)
		assert.Equal(t, []string{"cat", "cat"}, lemmas(entries))
	})

	t.Run("entry keys of unknown dictionary", func(t *testing.T) {
		keys, err := repo.EntryKeys(ctx, "ffffffffffffffffffffffff")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func runLinkingJobContract(t *testing.T, repo repository.LinkingJobRepository) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	newJob := func(id string, offset time.Duration) *entity.LinkingJob {
		return &entity.LinkingJob{
			ID:        id,
			Source:    entity.LinkingSource{ID: "0123456789abcdef01234567", Entries: []string{"aaaaaaaaaaaaaaaaaaaaaa01"}},
			Target:    entity.LinkingSource{Endpoint: "https://remote.example", ID: "other", APIKey: "secret"},
			Config:    map[string]any{"algorithm": "naisc"},
			State:     entity.LinkingProcessing,
			Message:   entity.DefaultLinkingMessage,
			CreatedAt: created.Add(offset),
			UpdatedAt: created.Add(offset),
		}
	}

	require.NoError(t, repo.Create(ctx, newJob("cccccccccccccccccccccc01", 0)))
	require.NoError(t, repo.Create(ctx, newJob("cccccccccccccccccccccc02", time.Second)))

	job, err := repo.Get(ctx, "cccccccccccccccccccccc01")
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingProcessing, job.State)
	assert.Equal(t, entity.DefaultLinkingMessage, job.Message)
	assert.Equal(t, "secret", job.Target.APIKey)

	_, err = repo.Get(ctx, "dddddddddddddddddddddddd")
	assert.True(t, errors.Is(err, entity.ErrJobNotFound))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "cccccccccccccccccccccc01", pending[0].ID)

	links := []entity.SenseLink{{
		SourceEntry: "aaaaaaaaaaaaaaaaaaaaaa01", SourceSense: "cat-n-1",
		TargetEntry: "x", TargetSense: "x-1",
		Type: entity.LinkExact, Score: 0.8,
	}}
	require.NoError(t, repo.Finish(ctx, "cccccccccccccccccccccc01", entity.LinkingCompleted, "done", links))

	job, err = repo.Get(ctx, "cccccccccccccccccccccc01")
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingCompleted, job.State)
	assert.Equal(t, links, job.Result)

	err = repo.Finish(ctx, "cccccccccccccccccccccc01", entity.LinkingFailed, "late failure", nil)
	assert.True(t, errors.Is(err, entity.ErrJobFinished))
	job, err = repo.Get(ctx, "cccccccccccccccccccccc01")
	require.NoError(t, err)
	assert.Equal(t, entity.LinkingCompleted, job.State, "terminal state must not change")

	pending, err = repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cccccccccccccccccccccc02", pending[0].ID)

	assert.True(t, errors.Is(repo.Finish(ctx, "dddddddddddddddddddddddd", entity.LinkingFailed, "x", nil), entity.ErrJobNotFound))
}

func TestMemoryRepositories(t *testing.T) {
	t.Run("dictionaries", func(t *testing.T) {
		runDictionaryContract(t, NewDictionaryMemoryRepository())
	})
	t.Run("linking jobs", func(t *testing.T) {
		runLinkingJobContract(t, NewLinkingJobMemoryRepository())
	})
}

func TestDictionaryMemoryRepository_IsolatesCallerMutations(t *testing.T) {
	ctx := context.Background()
	repo := NewDictionaryMemoryRepository()
	entries := seedEntries()
	require.NoError(t, repo.Replace(ctx, testDictionary("0123456789abcdef01234567"), entries))

	entries[0].Lemma = "mutated"
	got, err := repo.GetEntry(ctx, "0123456789abcdef01234567", entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "cat", got.Lemma)

	got.Senses[0].Definitions["en"] = "mutated"
	again, err := repo.GetEntry(ctx, "0123456789abcdef01234567", entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "definition of cat", again.Senses[0].Definitions["en"])
}
