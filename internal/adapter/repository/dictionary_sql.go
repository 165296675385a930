package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/config"
	"github.com/eslsoft/lexmatrix/internal/repository"
)

// DictionarySQLRepository stores every import as a revision and points dictionary_heads at the
// live one. Replace writes the new revision, swaps the head and drops superseded revisions in one
// transaction.
type DictionarySQLRepository struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	readTx *sql.TxOptions
}

// NewDictionarySQLRepository constructs a store over a migrated sqlite3 or postgres database.
func NewDictionarySQLRepository(db *sql.DB, driver string) *DictionarySQLRepository {
	r := &DictionarySQLRepository{db: db, sb: statementBuilder(driver)}
	if driver == config.DriverPostgres {
		r.readTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return r
}

var _ repository.DictionaryRepository = (*DictionarySQLRepository)(nil)

func (r *DictionarySQLRepository) Replace(ctx context.Context, dict *entity.Dictionary, entries []*entity.Entry) (err error) {
	stored := dict.Clone()
	stored.EntryCount = len(entries)
	dictDoc, err := encodeDoc(stored)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	revision := entity.NewID()
	if _, err = r.sb.Insert("dictionary_revisions").
		Columns("revision", "dictionary_id", "doc", "created_at").
		Values(revision, dict.ID, dictDoc, formatTimestamp(time.Now())).
		RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert dictionary revision: %w", err)
	}

	for i, e := range entries {
		doc, encErr := encodeDoc(e)
		if encErr != nil {
			return encErr
		}
		if _, err = r.sb.Insert("entries").
			Columns("revision", "position", "entry_id", "lemma", "pos", "language", "doc").
			Values(revision, i, e.ID, e.Lemma, string(e.PartOfSpeech), e.Language, doc).
			RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
		for _, form := range uniqueStrings(e.InflectedForms()) {
			if _, err = r.sb.Insert("entry_forms").
				Columns("revision", "entry_id", "form").
				Values(revision, e.ID, form).
				RunWith(tx).ExecContext(ctx); err != nil {
				return fmt.Errorf("insert entry form %s: %w", e.ID, err)
			}
		}
	}

	if _, err = r.sb.Insert("dictionary_heads").
		Columns("dictionary_id", "revision").
		Values(dict.ID, revision).
		Suffix("ON CONFLICT (dictionary_id) DO UPDATE SET revision = excluded.revision").
		RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("swap dictionary head: %w", err)
	}

	stale := sq.Expr("revision IN (SELECT revision FROM dictionary_revisions WHERE dictionary_id = ? AND revision <> ?)", dict.ID, revision)
	for _, table := range []string{"entry_forms", "entries"} {
		if _, err = r.sb.Delete(table).Where(stale).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("drop superseded revision from %s: %w", table, err)
		}
	}
	if _, err = r.sb.Delete("dictionary_revisions").
		Where(sq.Eq{"dictionary_id": dict.ID}).
		Where(sq.NotEq{"revision": revision}).
		RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("drop superseded revision: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (r *DictionarySQLRepository) Get(ctx context.Context, id string) (*entity.Dictionary, error) {
	var doc string
	err := r.sb.Select("d.doc").
		From("dictionary_heads h").
		Join("dictionary_revisions d ON d.revision = h.revision").
		Where(sq.Eq{"h.dictionary_id": id}).
		RunWith(r.db).QueryRowContext(ctx).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrDictionaryNotFound
		}
		return nil, fmt.Errorf("get dictionary: %w", err)
	}
	var dict entity.Dictionary
	if err := decodeDoc(doc, &dict); err != nil {
		return nil, err
	}
	dict.ID = id
	return &dict, nil
}

func (r *DictionarySQLRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.sb.Select("dictionary_id").From("dictionary_heads").
		OrderBy("dictionary_id").
		RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dictionaries: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dictionary id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// head resolves the live revision of a dictionary.
func (r *DictionarySQLRepository) head(ctx context.Context, q sq.BaseRunner, dictionaryID string) (string, error) {
	var revision string
	err := r.sb.Select("revision").From("dictionary_heads").
		Where(sq.Eq{"dictionary_id": dictionaryID}).
		RunWith(q).QueryRowContext(ctx).Scan(&revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", entity.ErrDictionaryNotFound
		}
		return "", fmt.Errorf("read dictionary head: %w", err)
	}
	return revision, nil
}

// readOnly runs fn in one snapshot so a concurrent Replace cannot drop the revision between
// resolving the head and reading its entries. sqlite serializes on its single connection.
func (r *DictionarySQLRepository) readOnly(ctx context.Context, dictionaryID string, fn func(tx *sql.Tx, revision string) error) error {
	tx, err := r.db.BeginTx(ctx, r.readTx)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	revision, err := r.head(ctx, tx, dictionaryID)
	if err != nil {
		return err
	}
	return fn(tx, revision)
}

func (r *DictionarySQLRepository) ListEntries(ctx context.Context, query *repository.ListEntriesQuery) ([]*entity.Entry, error) {
	params, err := bindListEntries(&query.FilterOrder)
	if err != nil {
		return nil, err
	}

	var entries []*entity.Entry
	err = r.readOnly(ctx, query.DictionaryID, func(tx *sql.Tx, revision string) error {
		b := r.sb.Select("e.doc").From("entries e").Where(sq.Eq{"e.revision": revision})
		if params.PartOfSpeech != "" {
			b = b.Where(sq.Eq{"e.pos": params.PartOfSpeech})
		}
		if len(params.PartsOfSpeech) > 0 {
			b = b.Where(sq.Eq{"e.pos": params.PartsOfSpeech})
		}
		if params.Lemma != "" {
			b = b.Where(sq.Eq{"e.lemma": params.Lemma})
		}
		if params.LemmaPrefix != "" {
			b = b.Where("substr(e.lemma, 1, ?) = ?", len([]rune(params.LemmaPrefix)), params.LemmaPrefix)
		}
		if params.Language != "" {
			b = b.Where(sq.Eq{"e.language": params.Language})
		}
		b = b.OrderBy(orderExpr(params.PrimaryKey, params.PrimaryDesc), orderExpr(params.SecondaryKey, params.SecondaryDesc))
		b = paginate(b, query.Pagination)

		entries, err = r.scanEntries(ctx, tx, b)
		return err
	})
	return entries, err
}

func (r *DictionarySQLRepository) GetEntry(ctx context.Context, dictionaryID, entryID string) (*entity.Entry, error) {
	var entry *entity.Entry
	err := r.readOnly(ctx, dictionaryID, func(tx *sql.Tx, revision string) error {
		entries, err := r.scanEntries(ctx, tx, r.sb.Select("e.doc").From("entries e").
			Where(sq.Eq{"e.revision": revision, "e.entry_id": entryID}))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return entity.ErrEntryNotFound
		}
		entry = entries[0]
		return nil
	})
	return entry, err
}

func (r *DictionarySQLRepository) GetEntries(ctx context.Context, dictionaryID string, entryIDs []string) ([]*entity.Entry, error) {
	var entries []*entity.Entry
	err := r.readOnly(ctx, dictionaryID, func(tx *sql.Tx, revision string) error {
		b := r.sb.Select("e.doc").From("entries e").Where(sq.Eq{"e.revision": revision}).OrderBy("e.position")
		var want []string
		if entryIDs != nil {
			want = uniqueStrings(entryIDs)
			if len(want) == 0 {
				entries = []*entity.Entry{}
				return nil
			}
			b = b.Where(sq.Eq{"e.entry_id": want})
		}
		var err error
		entries, err = r.scanEntries(ctx, tx, b)
		if err != nil {
			return err
		}
		if entryIDs != nil && len(entries) != len(want) {
			return entity.ErrEntryNotFound
		}
		return nil
	})
	return entries, err
}

func (r *DictionarySQLRepository) GetWithEntries(ctx context.Context, id string) (*entity.Dictionary, []*entity.Entry, error) {
	var (
		dict    entity.Dictionary
		entries []*entity.Entry
	)
	err := r.readOnly(ctx, id, func(tx *sql.Tx, revision string) error {
		var doc string
		err := r.sb.Select("doc").From("dictionary_revisions").
			Where(sq.Eq{"revision": revision}).
			RunWith(tx).QueryRowContext(ctx).Scan(&doc)
		if err != nil {
			return fmt.Errorf("get dictionary: %w", err)
		}
		if err := decodeDoc(doc, &dict); err != nil {
			return err
		}
		entries, err = r.scanEntries(ctx, tx, r.sb.Select("e.doc").From("entries e").
			Where(sq.Eq{"e.revision": revision}).OrderBy("e.position"))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	dict.ID = id
	return &dict, entries, nil
}

func (r *DictionarySQLRepository) FindByHeadword(ctx context.Context, query *repository.HeadwordQuery) ([]*entity.Entry, error) {
	var entries []*entity.Entry
	err := r.readOnly(ctx, query.DictionaryID, func(tx *sql.Tx, revision string) error {
		match := sq.Or{sq.Eq{"e.lemma": query.Headword}}
		if query.Inflected {
			match = append(match, sq.Expr(
				"e.entry_id IN (SELECT f.entry_id FROM entry_forms f WHERE f.revision = e.revision AND f.form = ?)",
				query.Headword,
			))
		}
		b := r.sb.Select("e.doc").From("entries e").
			Where(sq.Eq{"e.revision": revision}).
			Where(match).
			OrderBy("e.position")
		if query.PartOfSpeech != "" {
			b = b.Where(sq.Eq{"e.pos": string(query.PartOfSpeech)})
		}
		b = paginate(b, query.Pagination)
		var err error
		entries, err = r.scanEntries(ctx, tx, b)
		return err
	})
	return entries, err
}

func (r *DictionarySQLRepository) EntryKeys(ctx context.Context, dictionaryID string) ([]repository.EntryKey, error) {
	var keys []repository.EntryKey
	err := r.readOnly(ctx, dictionaryID, func(tx *sql.Tx, revision string) error {
		rows, err := r.sb.Select("entry_id", "lemma", "pos").From("entries").
			Where(sq.Eq{"revision": revision}).
			OrderBy("position").
			RunWith(tx).QueryContext(ctx)
		if err != nil {
			return fmt.Errorf("list entry keys: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k repository.EntryKey
			var pos string
			if err := rows.Scan(&k.ID, &k.Lemma, &pos); err != nil {
				return fmt.Errorf("scan entry key: %w", err)
			}
			k.PartOfSpeech = entity.PartOfSpeech(pos)
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if errors.Is(err, entity.ErrDictionaryNotFound) {
		return nil, nil
	}
	return keys, err
}

func (r *DictionarySQLRepository) scanEntries(ctx context.Context, tx *sql.Tx, b sq.SelectBuilder) ([]*entity.Entry, error) {
	rows, err := b.RunWith(tx).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	entries := []*entity.Entry{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var e entity.Entry
		if err := decodeDoc(doc, &e); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func paginate(b sq.SelectBuilder, p repository.Pagination) sq.SelectBuilder {
	b = b.Limit(uint64(p.PageSize()))
	if p.Offset > 0 {
		b = b.Offset(uint64(p.Offset))
	}
	return b
}
