package repository

import (
	"context"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// ListEntriesQuery pages through the entries of one dictionary. Filter accepts a CEL conjunction
// over partOfSpeech, lemma and language; OrderBy accepts "position" and "lemma".
type ListEntriesQuery struct {
	DictionaryID string
	Pagination
	FilterOrder
}

// HeadwordQuery looks entries up by headword. With Inflected set, alternate forms match too.
type HeadwordQuery struct {
	DictionaryID string
	Headword     string
	PartOfSpeech entity.PartOfSpeech
	Inflected    bool
	Pagination
}

// EntryKey identifies a stored entry by the fields used to carry ids over a re-import.
type EntryKey struct {
	ID           string
	Lemma        string
	PartOfSpeech entity.PartOfSpeech
}

// DictionaryRepository is the store contract for dictionaries and their entries.
type DictionaryRepository interface {
	// Replace inserts dict with entries, or supersedes the dictionary stored under dict.ID.
	// Readers observe either the old or the new content, never a mix.
	Replace(ctx context.Context, dict *entity.Dictionary, entries []*entity.Entry) error
	Get(ctx context.Context, id string) (*entity.Dictionary, error)
	ListIDs(ctx context.Context) ([]string, error)
	ListEntries(ctx context.Context, query *ListEntriesQuery) ([]*entity.Entry, error)
	GetEntry(ctx context.Context, dictionaryID, entryID string) (*entity.Entry, error)
	// GetEntries returns the requested entries in dictionary order; nil ids selects all entries.
	GetEntries(ctx context.Context, dictionaryID string, entryIDs []string) ([]*entity.Entry, error)
	// GetWithEntries reads a dictionary and all of its entries from one revision.
	GetWithEntries(ctx context.Context, id string) (*entity.Dictionary, []*entity.Entry, error)
	FindByHeadword(ctx context.Context, query *HeadwordQuery) ([]*entity.Entry, error)
	EntryKeys(ctx context.Context, dictionaryID string) ([]EntryKey, error)
}
