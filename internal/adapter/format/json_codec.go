package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

const ontolexNS = "http://www.w3.org/ns/lemon/ontolex#"

var jsonLDContext = map[string]any{
	"ontolex": ontolexNS,
	"lexinfo": "http://www.lexinfo.net/ontology/3.0/lexinfo#",
	"lime":    "http://www.w3.org/ns/lemon/lime#",
	"skos":    "http://www.w3.org/2004/02/skos/core#",
	"dct":     "http://purl.org/dc/terms/",
	"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",

	"lemma":                "rdfs:label",
	"language":             "lime:language",
	"canonicalForm":        map[string]string{"@id": "ontolex:canonicalForm"},
	"otherForm":            map[string]string{"@id": "ontolex:otherForm"},
	"writtenRep":           map[string]string{"@id": "ontolex:writtenRep", "@container": "@language"},
	"phoneticRep":          map[string]string{"@id": "ontolex:phoneticRep", "@container": "@language"},
	"partOfSpeech":         map[string]string{"@id": "lexinfo:partOfSpeech", "@type": "@vocab"},
	"senses":               map[string]string{"@id": "ontolex:sense"},
	"definition":           map[string]string{"@id": "skos:definition", "@container": "@language"},
	"reference":            map[string]string{"@id": "ontolex:reference", "@type": "@id"},
	"morphologicalPattern": map[string]string{"@id": "ontolex:morphologicalPattern"},
	"etymology":            "lexinfo:etymology",
	"usage":                "ontolex:usage",
}

// JSONLDContext returns the context document referenced by exported JSON entries.
func JSONLDContext() []byte {
	data, _ := json.MarshalIndent(map[string]any{"@context": jsonLDContext}, "", "  ")
	return data
}

type jsonForm struct {
	WrittenRep  json.RawMessage `json:"writtenRep,omitempty"`
	PhoneticRep json.RawMessage `json:"phoneticRep,omitempty"`
}

type jsonSense struct {
	ID         string          `json:"@id,omitempty"`
	AltID      string          `json:"id,omitempty"`
	Definition json.RawMessage `json:"definition,omitempty"`
	Reference  flexStrings     `json:"reference,omitempty"`
}

type jsonEntry struct {
	Context              any             `json:"@context,omitempty"`
	Type                 string          `json:"@type,omitempty"`
	ID                   string          `json:"@id,omitempty"`
	Lemma                string          `json:"lemma,omitempty"`
	Language             string          `json:"language,omitempty"`
	CanonicalForm        *jsonForm       `json:"canonicalForm,omitempty"`
	OtherForm            json.RawMessage `json:"otherForm,omitempty"`
	PartOfSpeech         string          `json:"partOfSpeech,omitempty"`
	Senses               []jsonSense     `json:"senses"`
	MorphologicalPattern flexStrings     `json:"morphologicalPattern,omitempty"`
	Etymology            flexStrings     `json:"etymology,omitempty"`
	Usage                flexStrings     `json:"usage,omitempty"`
}

type jsonMeta struct {
	Release        string              `json:"release,omitempty"`
	SourceLanguage string              `json:"sourceLanguage,omitempty"`
	TargetLanguage flexStrings         `json:"targetLanguage,omitempty"`
	Genre          flexStrings         `json:"genre,omitempty"`
	License        string              `json:"license,omitempty"`
	Title          string              `json:"title,omitempty"`
	Description    string              `json:"description,omitempty"`
	Creator        entity.Attributions `json:"creator,omitempty"`
	Publisher      entity.Attributions `json:"publisher,omitempty"`
}

type jsonDictionary struct {
	Context any               `json:"@context,omitempty"`
	Meta    *jsonMeta         `json:"meta,omitempty"`
	Entries []json.RawMessage `json:"entries"`
}

// flexStrings accepts a single string where a list is expected.
type flexStrings []string

func (fs *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*fs = flexStrings{s}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*fs = many
	return nil
}

func jsonErrorf(path, format string, args ...any) error {
	return &entity.ParseError{Format: string(FormatJSON), Location: path, Msg: fmt.Sprintf(format, args...)}
}

func parseJSON(data []byte, lang string) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &entity.ParseError{Format: string(FormatJSON), Location: "$", Msg: "malformed JSON", Err: err}
		}
		return buildJSONDocument(&jsonDictionary{Entries: raw}, "$", lang)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &entity.ParseError{Format: string(FormatJSON), Location: "$", Msg: "malformed JSON", Err: err}
	}

	path := "$"
	if _, ok := top["entries"]; !ok && len(top) == 1 {
		for key, inner := range top {
			var wrapped map[string]json.RawMessage
			if json.Unmarshal(inner, &wrapped) == nil && (wrapped["entries"] != nil || wrapped["meta"] != nil) {
				data, top, path = inner, wrapped, fmt.Sprintf("$[%q]", key)
			}
		}
	}

	if _, ok := top["entries"]; ok || top["meta"] != nil {
		var doc jsonDictionary
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &entity.ParseError{Format: string(FormatJSON), Location: path, Msg: "malformed dictionary document", Err: err}
		}
		return buildJSONDocument(&doc, path+".entries", lang)
	}
	if top["canonicalForm"] != nil || top["@type"] != nil {
		dict := &entity.Dictionary{SourceLanguage: lang}
		e, err := parseJSONEntry(data, "$", dict.SourceLanguage)
		if err != nil {
			return nil, err
		}
		if dict.SourceLanguage == "" {
			dict.SourceLanguage = e.Language
		}
		return &Document{Dictionary: dict, Entries: []*entity.Entry{e}}, nil
	}
	return nil, jsonErrorf("$", "expected a dictionary document, an entry or a list of entries")
}

func buildJSONDocument(doc *jsonDictionary, entriesPath, lang string) (*Document, error) {
	dict := &entity.Dictionary{}
	if doc.Meta != nil {
		if err := applyJSONMeta(dict, doc.Meta, strings.TrimSuffix(entriesPath, ".entries")+".meta"); err != nil {
			return nil, err
		}
	}
	if lang != "" {
		dict.SourceLanguage = lang
	}

	out := &Document{Dictionary: dict, Entries: make([]*entity.Entry, 0, len(doc.Entries))}
	for i, raw := range doc.Entries {
		e, err := parseJSONEntry(raw, fmt.Sprintf("%s[%d]", entriesPath, i), dict.SourceLanguage)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, e)
	}
	if dict.SourceLanguage == "" && len(out.Entries) > 0 {
		dict.SourceLanguage = out.Entries[0].Language
	}
	return out, nil
}

func applyJSONMeta(dict *entity.Dictionary, meta *jsonMeta, path string) error {
	if meta.Release != "" {
		release, err := entity.ParseReleasePolicy(meta.Release)
		if err != nil {
			return jsonErrorf(path+".release", "unknown release policy %q", meta.Release)
		}
		dict.Release = release
	}
	if meta.SourceLanguage != "" {
		lang, err := entity.NormalizeLanguage(meta.SourceLanguage)
		if err != nil {
			return jsonErrorf(path+".sourceLanguage", "%v", err)
		}
		dict.SourceLanguage = lang
	}
	for i, raw := range meta.TargetLanguage {
		lang, err := entity.NormalizeLanguage(raw)
		if err != nil {
			return jsonErrorf(fmt.Sprintf("%s.targetLanguage[%d]", path, i), "%v", err)
		}
		dict.TargetLanguages = append(dict.TargetLanguages, lang)
	}
	for i, raw := range meta.Genre {
		genre, err := entity.ParseGenre(raw)
		if err != nil {
			return jsonErrorf(fmt.Sprintf("%s.genre[%d]", path, i), "unknown genre %q", raw)
		}
		dict.Genres = append(dict.Genres, genre)
	}
	dict.License = collapseSpace(meta.License)
	dict.Title = collapseSpace(meta.Title)
	dict.Description = collapseSpace(meta.Description)
	dict.Creators = meta.Creator
	dict.Publishers = meta.Publisher
	return nil
}

func parseJSONEntry(data []byte, path, dictLang string) (*entity.Entry, error) {
	var je jsonEntry
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, &entity.ParseError{Format: string(FormatJSON), Location: path, Msg: "malformed entry", Err: err}
	}

	e := &entity.Entry{OriginID: je.ID, Type: entity.EntryTypeLexicalEntry, Language: dictLang}
	if je.Type != "" {
		local := je.Type
		if i := strings.LastIndexAny(local, "#:"); i >= 0 {
			local = local[i+1:]
		}
		e.Type, _ = entity.ParseEntryType(local)
	}
	if je.Language != "" {
		lang, err := entity.NormalizeLanguage(je.Language)
		if err != nil {
			return nil, jsonErrorf(path+".language", "%v", err)
		}
		e.Language = lang
	}

	if je.CanonicalForm == nil {
		return nil, jsonErrorf(path+".canonicalForm", "entry has no canonical form")
	}
	var err error
	if e.CanonicalForm, err = decodeJSONForm(*je.CanonicalForm, path+".canonicalForm", e.Language); err != nil {
		return nil, err
	}
	if e.CanonicalForm.WrittenRep.Empty() {
		return nil, jsonErrorf(path+".canonicalForm.writtenRep", "canonical form has no written representation")
	}

	if len(je.OtherForm) > 0 {
		var forms []jsonForm
		if bytes.HasPrefix(bytes.TrimSpace(je.OtherForm), []byte("{")) {
			forms = make([]jsonForm, 1)
			err = json.Unmarshal(je.OtherForm, &forms[0])
		} else {
			err = json.Unmarshal(je.OtherForm, &forms)
		}
		if err != nil {
			return nil, &entity.ParseError{Format: string(FormatJSON), Location: path + ".otherForm", Msg: "malformed forms", Err: err}
		}
		for i, jf := range forms {
			f, err := decodeJSONForm(jf, fmt.Sprintf("%s.otherForm[%d]", path, i), e.Language)
			if err != nil {
				return nil, err
			}
			if !f.Empty() {
				e.OtherForms = append(e.OtherForms, f)
			}
		}
	}

	if je.PartOfSpeech == "" {
		return nil, jsonErrorf(path+".partOfSpeech", "entry has no part of speech")
	}
	if e.PartOfSpeech, err = entity.ParsePartOfSpeech(je.PartOfSpeech); err != nil {
		return nil, jsonErrorf(path+".partOfSpeech", "%v", err)
	}

	for i, js := range je.Senses {
		spath := fmt.Sprintf("%s.senses[%d]", path, i)
		s := entity.Sense{ID: js.ID, References: append([]string(nil), js.Reference...)}
		if s.ID == "" {
			s.ID = js.AltID
		}
		defs, err := decodeLangValues(js.Definition, spath+".definition", e.Language)
		if err != nil {
			return nil, err
		}
		if !defs.Empty() {
			s.Definitions = make(map[string]string, len(defs))
			for _, l := range defs.Languages() {
				s.Definitions[l] = strings.Join(defs[l], "; ")
			}
		}
		if len(s.Definitions) > 0 || len(s.References) > 0 {
			e.Senses = append(e.Senses, s)
		}
	}

	e.MorphologicalPatterns = collapseAll(je.MorphologicalPattern)
	e.Etymology = collapseAll(je.Etymology)
	e.Usage = collapseAll(je.Usage)

	headLang := headwordLanguage(e.CanonicalForm.WrittenRep, e.Language, dictLang)
	if e.Language == "" {
		e.Language = headLang
	}
	e.Lemma = collapseSpace(je.Lemma)
	if e.Lemma == "" {
		e.Lemma = e.CanonicalForm.WrittenRep.First(headLang)
	}
	return e, nil
}

func decodeJSONForm(jf jsonForm, path, lang string) (entity.Form, error) {
	written, err := decodeLangValues(jf.WrittenRep, path+".writtenRep", lang)
	if err != nil {
		return entity.Form{}, err
	}
	phonetic, err := decodeLangValues(jf.PhoneticRep, path+".phoneticRep", lang)
	if err != nil {
		return entity.Form{}, err
	}
	return entity.Form{WrittenRep: written, PhoneticRep: phonetic}, nil
}

// decodeLangValues reads a language map whose values are strings or lists of strings. A bare
// string or list is tagged with lang.
func decodeLangValues(raw json.RawMessage, path, lang string) (entity.LangValues, error) {
	out := entity.LangValues{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	if raw[0] != '{' {
		var values flexStrings
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, &entity.ParseError{Format: string(FormatJSON), Location: path, Msg: "expected a string, a list or a language map", Err: err}
		}
		for _, v := range values {
			if v = collapseSpace(v); v != "" {
				out.Add(lang, v)
			}
		}
		return out, nil
	}

	var byLang map[string]flexStrings
	if err := json.Unmarshal(raw, &byLang); err != nil {
		return nil, &entity.ParseError{Format: string(FormatJSON), Location: path, Msg: "expected a language map", Err: err}
	}
	for _, tag := range sortedKeys(byLang) {
		l, err := entity.NormalizeLanguage(tag)
		if err != nil {
			return nil, jsonErrorf(path+"."+tag, "%v", err)
		}
		for _, v := range byLang[tag] {
			if v = collapseSpace(v); v != "" {
				out.Add(l, v)
			}
		}
	}
	return out, nil
}

func toJSONEntry(e *entity.Entry) jsonEntry {
	entryType := e.Type
	if entryType == "" {
		entryType = entity.EntryTypeLexicalEntry
	}
	je := jsonEntry{
		Type:                 ontolexNS + string(entryType),
		ID:                   entryRef(e),
		Lemma:                e.Lemma,
		Language:             e.Language,
		CanonicalForm:        encodeJSONForm(e.CanonicalForm),
		PartOfSpeech:         "lexinfo:" + e.PartOfSpeech.Lexinfo(),
		Senses:               make([]jsonSense, 0, len(e.Senses)),
		MorphologicalPattern: e.MorphologicalPatterns,
		Etymology:            e.Etymology,
		Usage:                e.Usage,
	}
	if len(e.OtherForms) > 0 {
		forms := make([]*jsonForm, 0, len(e.OtherForms))
		for _, f := range e.OtherForms {
			forms = append(forms, encodeJSONForm(f))
		}
		je.OtherForm, _ = json.Marshal(forms)
	}
	for i, s := range e.Senses {
		js := jsonSense{ID: e.SenseID(i), Reference: s.References}
		if len(s.Definitions) > 0 {
			js.Definition, _ = json.Marshal(s.Definitions)
		}
		je.Senses = append(je.Senses, js)
	}
	return je
}

func encodeJSONForm(f entity.Form) *jsonForm {
	jf := &jsonForm{}
	if !f.WrittenRep.Empty() {
		jf.WrittenRep, _ = json.Marshal(f.WrittenRep)
	}
	if !f.PhoneticRep.Empty() {
		jf.PhoneticRep, _ = json.Marshal(f.PhoneticRep)
	}
	return jf
}

func writeJSONEntry(w io.Writer, e *entity.Entry) error {
	je := toJSONEntry(e)
	je.Context = jsonLDContext
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(je)
}

func writeJSONDictionary(w io.Writer, dict *entity.Dictionary, entries []*entity.Entry) error {
	meta := &jsonMeta{
		Release:        string(dict.Release),
		SourceLanguage: dict.SourceLanguage,
		TargetLanguage: dict.TargetLanguages,
		License:        dict.License,
		Title:          dict.Title,
		Description:    dict.Description,
		Creator:        dict.Creators,
		Publisher:      dict.Publishers,
	}
	for _, g := range dict.Genres {
		meta.Genre = append(meta.Genre, string(g))
	}

	doc := jsonDictionary{Context: jsonLDContext, Meta: meta, Entries: make([]json.RawMessage, 0, len(entries))}
	for _, e := range entries {
		raw, err := json.Marshal(toJSONEntry(e))
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		doc.Entries = append(doc.Entries, raw)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
