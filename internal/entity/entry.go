package entity

import "strconv"

// EntryType is the OntoLex class of a lexical entry.
type EntryType string

const (
	EntryTypeLexicalEntry        EntryType = "LexicalEntry"
	EntryTypeWord                EntryType = "Word"
	EntryTypeAffix               EntryType = "Affix"
	EntryTypeMultiWordExpression EntryType = "MultiWordExpression"
)

// ParseEntryType matches the OntoLex class local name; anything else is a plain LexicalEntry.
func ParseEntryType(s string) (EntryType, bool) {
	switch t := EntryType(s); t {
	case EntryTypeLexicalEntry, EntryTypeWord, EntryTypeAffix, EntryTypeMultiWordExpression:
		return t, true
	default:
		return EntryTypeLexicalEntry, false
	}
}

// Form carries written and phonetic representations grouped by language tag.
type Form struct {
	WrittenRep  LangValues `json:"writtenRep,omitempty"`
	PhoneticRep LangValues `json:"phoneticRep,omitempty"`
}

// Empty reports whether the form has no representation at all.
func (f Form) Empty() bool {
	return f.WrittenRep.Empty() && f.PhoneticRep.Empty()
}

func (f Form) clone() Form {
	return Form{WrittenRep: f.WrittenRep.Clone(), PhoneticRep: f.PhoneticRep.Clone()}
}

// Sense is one meaning of an entry.
type Sense struct {
	ID          string            `json:"id,omitempty"`
	Definitions map[string]string `json:"definition,omitempty"`
	References  []string          `json:"reference,omitempty"`
}

// Entry is one lexical unit of a dictionary.
type Entry struct {
	ID                    string       `json:"id"`
	OriginID              string       `json:"origin_id,omitempty"`
	Type                  EntryType    `json:"type"`
	Lemma                 string       `json:"lemma"`
	Language              string       `json:"language,omitempty"`
	CanonicalForm         Form         `json:"canonicalForm"`
	OtherForms            []Form       `json:"otherForm,omitempty"`
	PartOfSpeech          PartOfSpeech `json:"partOfSpeech"`
	Senses                []Sense      `json:"senses"`
	MorphologicalPatterns []string     `json:"morphologicalPattern,omitempty"`
	Etymology             []string     `json:"etymology,omitempty"`
	Usage                 []string     `json:"usage,omitempty"`
}

// SenseID returns the sense identifier, or "{entry id}-{i}" when the source had none.
func (e *Entry) SenseID(i int) string {
	if id := e.Senses[i].ID; id != "" {
		return id
	}
	return e.ID + "-" + strconv.Itoa(i)
}

// InflectedForms returns every written representation of the alternate forms.
func (e *Entry) InflectedForms() []string {
	var out []string
	for _, f := range e.OtherForms {
		for _, lang := range f.WrittenRep.Languages() {
			out = append(out, f.WrittenRep[lang]...)
		}
	}
	return out
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	out := *e
	out.CanonicalForm = e.CanonicalForm.clone()
	out.OtherForms = make([]Form, len(e.OtherForms))
	for i, f := range e.OtherForms {
		out.OtherForms[i] = f.clone()
	}
	out.Senses = make([]Sense, len(e.Senses))
	for i, s := range e.Senses {
		defs := make(map[string]string, len(s.Definitions))
		for k, v := range s.Definitions {
			defs[k] = v
		}
		out.Senses[i] = Sense{ID: s.ID, Definitions: defs, References: append([]string(nil), s.References...)}
	}
	out.MorphologicalPatterns = append([]string(nil), e.MorphologicalPatterns...)
	out.Etymology = append([]string(nil), e.Etymology...)
	out.Usage = append([]string(nil), e.Usage...)
	return &out
}

// ExportFormat names a serialization an entry can be fetched in.
type ExportFormat string

const (
	ExportJSON    ExportFormat = "json"
	ExportTEI     ExportFormat = "tei"
	ExportOntolex ExportFormat = "ontolex"
)

// ExportFormats lists every format an entry can be exported as.
var ExportFormats = []ExportFormat{ExportJSON, ExportOntolex, ExportTEI}

// Lemma is the summary record returned by listings and headword lookups.
type Lemma struct {
	Lemma        string         `json:"lemma"`
	ID           string         `json:"id"`
	PartOfSpeech PartOfSpeech   `json:"partOfSpeech"`
	Language     string         `json:"language,omitempty"`
	Formats      []ExportFormat `json:"formats"`
	// Release is only set by remote listings that restrict single entries.
	Release ReleasePolicy `json:"release,omitempty"`
}

// Summary returns the Lemma record for e.
func (e *Entry) Summary() Lemma {
	return Lemma{
		Lemma:        e.Lemma,
		ID:           e.ID,
		PartOfSpeech: e.PartOfSpeech,
		Language:     e.Language,
		Formats:      ExportFormats,
	}
}
