package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

var entryClasses = []string{
	string(entity.EntryTypeLexicalEntry),
	string(entity.EntryTypeWord),
	string(entity.EntryTypeAffix),
	string(entity.EntryTypeMultiWordExpression),
}

type ontolexParser struct {
	g       *graph
	format  Format
	lexicon term
	hasLex  bool
	lang    string
}

func parseOntolex(data []byte, f Format, lang string) (*Document, error) {
	g, err := decodeGraph(data, f)
	if err != nil {
		return nil, err
	}
	p := &ontolexParser{g: g, format: f}
	for _, subj := range g.subjects {
		if g.hasType(subj, "Lexicon") {
			p.lexicon, p.hasLex = subj, true
			break
		}
	}

	if p.lang, err = p.resolveLanguage(lang); err != nil {
		return nil, err
	}

	doc := &Document{Dictionary: p.dictionary(), Entries: []*entity.Entry{}}
	for _, subj := range p.entrySubjects() {
		entries, err := p.entries(subj)
		if err != nil {
			return nil, err
		}
		doc.Entries = append(doc.Entries, entries...)
	}
	return doc, nil
}

func (p *ontolexParser) errorf(subj term, pred, format string, args ...any) error {
	loc := subj.key()
	if pred != "" {
		loc += " " + pred
	}
	return &entity.ParseError{Format: string(p.format), Location: loc, Msg: fmt.Sprintf(format, args...)}
}

// resolveLanguage picks the dictionary language: explicit, then lime:language, then the most
// frequent literal tag.
func (p *ontolexParser) resolveLanguage(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p.hasLex {
		if t, ok := p.g.first(p.lexicon, "language"); ok {
			return p.languageOf(p.lexicon, "language", t)
		}
	}

	counts := map[string]int{}
	for tag, n := range p.g.languageCounts() {
		lang, err := entity.NormalizeLanguage(tag)
		if err != nil {
			return "", &entity.ParseError{Format: string(p.format), Location: "@" + tag, Msg: err.Error()}
		}
		counts[lang] += n
	}
	best := ""
	for _, lang := range lo.Keys(counts) {
		if best == "" || counts[lang] > counts[best] || (counts[lang] == counts[best] && lang < best) {
			best = lang
		}
	}
	return best, nil
}

// languageOf reads a language given either as a literal ("en") or as a code list IRI
// (http://id.loc.gov/vocabulary/iso639-1/en).
func (p *ontolexParser) languageOf(subj term, pred string, t term) (string, error) {
	raw := t.value
	if t.kind == termIRI {
		raw = localName(t.value)
	}
	lang, err := entity.NormalizeLanguage(raw)
	if err != nil {
		return "", p.errorf(subj, pred, "%v", err)
	}
	return lang, nil
}

func (p *ontolexParser) dictionary() *entity.Dictionary {
	dict := &entity.Dictionary{SourceLanguage: p.lang}
	if !p.hasLex {
		return dict
	}
	lex := p.lexicon
	dict.Title = p.preferred(p.g.literals(lex, "title"))
	dict.Description = p.preferred(p.g.literals(lex, "description"))
	dict.Creators = p.attributions(lex, "creator")
	dict.Publishers = p.attributions(lex, "publisher")
	if t, ok := p.g.first(lex, "license", "rights"); ok {
		dict.License = t.value
	}
	return dict
}

// preferred returns the literal in the dictionary language, else the untagged one, else the first.
func (p *ontolexParser) preferred(lits []term) string {
	for _, want := range []string{p.lang, ""} {
		for _, l := range lits {
			lang := l.lang
			if norm, err := entity.NormalizeLanguage(lang); err == nil {
				lang = norm
			}
			if lang == want {
				return strings.TrimSpace(l.value)
			}
		}
	}
	if len(lits) > 0 {
		return strings.TrimSpace(lits[0].value)
	}
	return ""
}

func (p *ontolexParser) attributions(subj term, pred string) entity.Attributions {
	var out entity.Attributions
	for _, obj := range p.g.objects(subj, pred) {
		switch obj.kind {
		case termLiteral:
			out = append(out, entity.NameAttribution(obj.value))
		default:
			name := p.preferred(p.g.literals(obj, "name"))
			email := ""
			if t, ok := p.g.first(obj, "mbox"); ok {
				email = strings.TrimPrefix(t.value, "mailto:")
			}
			homepage := ""
			if t, ok := p.g.first(obj, "homepage"); ok {
				homepage = t.value
			}
			if name == "" && email == "" && homepage == "" && obj.kind == termIRI {
				name = obj.value
			}
			out = append(out, entity.ContactAttribution(name, email, homepage))
		}
	}
	return out
}

// entrySubjects lists the lexicon's lime:entry members first, then every other typed entry in
// document order.
func (p *ontolexParser) entrySubjects() []term {
	seen := map[string]bool{}
	var out []term
	if p.hasLex {
		for _, obj := range p.g.objects(p.lexicon, "entry") {
			if obj.node() && !seen[obj.key()] {
				seen[obj.key()] = true
				out = append(out, obj)
			}
		}
	}
	for _, subj := range p.g.subjects {
		if !seen[subj.key()] && p.g.hasType(subj, entryClasses...) {
			seen[subj.key()] = true
			out = append(out, subj)
		}
	}
	return out
}

func (p *ontolexParser) entries(subj term) ([]*entity.Entry, error) {
	lang := p.lang
	if t, ok := p.g.first(subj, "language"); ok {
		l, err := p.languageOf(subj, "language", t)
		if err != nil {
			return nil, err
		}
		lang = l
	}

	e := &entity.Entry{OriginID: relativeID(subj), Type: entity.EntryTypeLexicalEntry, Language: lang}
	for _, t := range p.g.types(subj) {
		if et, ok := entity.ParseEntryType(t); ok {
			e.Type = et
			if et != entity.EntryTypeLexicalEntry {
				break
			}
		}
	}

	pos, err := p.partOfSpeech(subj)
	if err != nil {
		return nil, err
	}
	e.PartOfSpeech = pos

	canonical, ok := p.g.first(subj, "canonicalForm")
	if !ok {
		return nil, p.errorf(subj, "canonicalForm", "entry has no canonical form")
	}
	if e.CanonicalForm, err = p.form(canonical, lang); err != nil {
		return nil, err
	}
	if e.CanonicalForm.WrittenRep.Empty() {
		return nil, p.errorf(canonical, "writtenRep", "canonical form has no written representation")
	}
	for _, obj := range p.g.objects(subj, "otherForm", "lexicalForm") {
		f, err := p.form(obj, lang)
		if err != nil {
			return nil, err
		}
		if !f.Empty() {
			e.OtherForms = append(e.OtherForms, f)
		}
	}

	for _, obj := range p.g.objects(subj, "sense") {
		s, err := p.sense(obj, lang)
		if err != nil {
			return nil, err
		}
		if len(s.Definitions) == 0 && len(s.References) == 0 {
			continue
		}
		e.Senses = append(e.Senses, s)
	}

	for _, obj := range p.g.objects(subj, "morphologicalPattern") {
		e.MorphologicalPatterns = append(e.MorphologicalPatterns, termString(obj))
	}
	for _, obj := range p.g.literals(subj, "etymology") {
		e.Etymology = append(e.Etymology, strings.TrimSpace(obj.value))
	}
	for _, obj := range p.g.literals(subj, "usage") {
		e.Usage = append(e.Usage, strings.TrimSpace(obj.value))
	}

	return splitHeadwords(e, p.lang), nil
}

func (p *ontolexParser) partOfSpeech(subj term) (entity.PartOfSpeech, error) {
	var found []entity.PartOfSpeech
	for _, obj := range p.g.objects(subj, "partOfSpeech") {
		pos, err := entity.ParsePartOfSpeech(obj.value)
		if err != nil {
			return "", p.errorf(subj, "partOfSpeech", "%v", err)
		}
		if !lo.Contains(found, pos) {
			found = append(found, pos)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", p.errorf(subj, "partOfSpeech", "entry has no part of speech")
	default:
		return "", p.errorf(subj, "partOfSpeech", "entry has %d parts of speech %v; exactly one is required", len(found), found)
	}
}

func (p *ontolexParser) form(node term, lang string) (entity.Form, error) {
	f := entity.Form{WrittenRep: entity.LangValues{}, PhoneticRep: entity.LangValues{}}
	if err := p.addLiterals(f.WrittenRep, node, "writtenRep", lang); err != nil {
		return f, err
	}
	if err := p.addLiterals(f.PhoneticRep, node, "phoneticRep", lang); err != nil {
		return f, err
	}
	return f, nil
}

func (p *ontolexParser) addLiterals(dst entity.LangValues, subj term, pred, fallback string) error {
	for _, lit := range p.g.literals(subj, pred) {
		lang, err := p.literalLanguage(subj, pred, lit, fallback)
		if err != nil {
			return err
		}
		if v := strings.TrimSpace(lit.value); v != "" {
			dst.Add(lang, v)
		}
	}
	return nil
}

// literalLanguage is the literal's own tag, then the entry language, then the dictionary language.
func (p *ontolexParser) literalLanguage(subj term, pred string, lit term, fallback string) (string, error) {
	if lit.lang != "" {
		lang, err := entity.NormalizeLanguage(lit.lang)
		if err != nil {
			return "", p.errorf(subj, pred, "%v", err)
		}
		return lang, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return p.lang, nil
}

func (p *ontolexParser) sense(node term, lang string) (entity.Sense, error) {
	s := entity.Sense{ID: relativeID(node)}
	defs := entity.LangValues{}
	if err := p.addLiterals(defs, node, "definition", lang); err != nil {
		return s, err
	}
	if !defs.Empty() {
		s.Definitions = make(map[string]string, len(defs))
		for _, l := range defs.Languages() {
			s.Definitions[l] = strings.Join(defs[l], "; ")
		}
	}
	for _, obj := range p.g.objects(node, "reference") {
		if ref := termString(obj); ref != "" && !lo.Contains(s.References, ref) {
			s.References = append(s.References, ref)
		}
	}
	return s, nil
}

// splitHeadwords emits one entry per headword in the dictionary language. Copies after the first
// suffix their sense ids with their position so sense ids stay unique.
func splitHeadwords(e *entity.Entry, dictLang string) []*entity.Entry {
	headLang := headwordLanguage(e.CanonicalForm.WrittenRep, dictLang, e.Language)
	headwords := e.CanonicalForm.WrittenRep[headLang]
	if e.Language == "" {
		e.Language = headLang
	}
	if len(headwords) == 1 {
		e.Lemma = headwords[0]
		return []*entity.Entry{e}
	}

	out := make([]*entity.Entry, 0, len(headwords))
	for i, hw := range headwords {
		c := e.Clone()
		c.Lemma = hw
		c.CanonicalForm.WrittenRep[headLang] = []string{hw}
		if i > 0 {
			for j := range c.Senses {
				if c.Senses[j].ID != "" {
					c.Senses[j].ID += "-" + strconv.Itoa(i+1)
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func headwordLanguage(reps entity.LangValues, dictLang, entryLang string) string {
	for _, lang := range []string{dictLang, entryLang} {
		if lang != "" && len(reps[lang]) > 0 {
			return lang
		}
	}
	if langs := reps.Languages(); len(langs) > 0 {
		return langs[0]
	}
	return dictLang
}
