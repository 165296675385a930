package repository

import (
	"strings"

	"github.com/samber/lo"

	"github.com/eslsoft/lexmatrix/internal/entity"
	"github.com/eslsoft/lexmatrix/pkg/filterexpr"
)

var listEntriesSchema = filterexpr.ResourceSchema{
	Filter: map[string]filterexpr.FilterField{
		"partOfSpeech": {
			Ops: map[filterexpr.Op]string{
				filterexpr.OpEQ: "PartOfSpeech",
				filterexpr.OpIN: "PartsOfSpeech",
			},
		},
		"lemma": {
			Ops: map[filterexpr.Op]string{
				filterexpr.OpEQ: "Lemma",
				filterexpr.OpSW: "LemmaPrefix",
			},
		},
		"language": {
			Ops: map[filterexpr.Op]string{filterexpr.OpEQ: "Language"},
		},
	},
	Order: filterexpr.OrderSchema{
		DefaultPrimary: "position",
		FallbackKey:    "lemma",
		Fields: map[string]filterexpr.OrderField{
			"position": {Expr: "e.position"},
			"lemma":    {Expr: "e.lemma"},
		},
	},
}

type listEntriesParams struct {
	PartOfSpeech  string
	PartsOfSpeech []string
	Lemma         string
	LemmaPrefix   string
	Language      string
	PrimaryKey    string
	PrimaryDesc   bool
	SecondaryKey  string
	SecondaryDesc bool
}

// bindListEntries parses the query's filter and ordering; POS literals accept any spelling
// entity.ParsePartOfSpeech understands.
func bindListEntries(query filterexpr.Msg) (listEntriesParams, error) {
	var p listEntriesParams
	if err := filterexpr.Bind(query, &p, listEntriesSchema); err != nil {
		return p, &entity.ValidationError{Field: "filter", Msg: err.Error()}
	}
	if p.PartOfSpeech != "" {
		pos, err := entity.ParsePartOfSpeech(p.PartOfSpeech)
		if err != nil {
			return p, &entity.ValidationError{Field: "filter", Msg: err.Error()}
		}
		p.PartOfSpeech = string(pos)
	}
	for i, raw := range p.PartsOfSpeech {
		pos, err := entity.ParsePartOfSpeech(raw)
		if err != nil {
			return p, &entity.ValidationError{Field: "filter", Msg: err.Error()}
		}
		p.PartsOfSpeech[i] = string(pos)
	}
	if p.Language != "" {
		lang, err := entity.NormalizeLanguage(p.Language)
		if err != nil {
			return p, &entity.ValidationError{Field: "filter", Msg: err.Error()}
		}
		p.Language = lang
	}
	return p, nil
}

func (p listEntriesParams) match(e *entity.Entry) bool {
	if p.PartOfSpeech != "" && string(e.PartOfSpeech) != p.PartOfSpeech {
		return false
	}
	if len(p.PartsOfSpeech) > 0 && !lo.Contains(p.PartsOfSpeech, string(e.PartOfSpeech)) {
		return false
	}
	if p.Lemma != "" && e.Lemma != p.Lemma {
		return false
	}
	if p.LemmaPrefix != "" && !strings.HasPrefix(e.Lemma, p.LemmaPrefix) {
		return false
	}
	if p.Language != "" && e.Language != p.Language {
		return false
	}
	return true
}

func orderExpr(key string, desc bool) string {
	expr := listEntriesSchema.Order.Fields[key].Expr
	if desc {
		return expr + " DESC"
	}
	return expr + " ASC"
}
