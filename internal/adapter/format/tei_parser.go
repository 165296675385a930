package format

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/lo"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

type teiParser struct {
	lang string
}

func parseTEI(data []byte, lang string) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &entity.ParseError{Format: string(FormatTEI), Msg: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &entity.ParseError{Format: string(FormatTEI), Msg: "document has no root element"}
	}
	if root.Tag == "TEI" && !declaresTEINamespace(root) {
		return nil, teiErrorf(root, "missing required TEI namespace %q", TEINamespace)
	}

	entries := collectEntries(root)
	p := &teiParser{}
	var err error
	if p.lang, err = p.resolveLanguage(root, entries, lang); err != nil {
		return nil, err
	}

	out := &Document{Dictionary: &entity.Dictionary{SourceLanguage: p.lang}, Entries: []*entity.Entry{}}
	if header := root.SelectElement("teiHeader"); header != nil {
		readTEIHeader(header, out.Dictionary)
	}
	for _, el := range entries {
		e, err := p.entry(el)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, splitHeadwords(e, p.lang)...)
	}
	return out, nil
}

func declaresTEINamespace(el *etree.Element) bool {
	for _, a := range el.Attr {
		if (a.Key == "xmlns" || a.Space == "xmlns") && a.Value == TEINamespace {
			return true
		}
	}
	return false
}

// collectEntries returns the outermost <entry> elements in document order.
func collectEntries(el *etree.Element) []*etree.Element {
	if el.Tag == "entry" {
		return []*etree.Element{el}
	}
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == "teiHeader" {
			continue
		}
		out = append(out, collectEntries(child)...)
	}
	return out
}

// resolveLanguage: explicit, then xml:lang on text/body/root, then the most frequent orth language.
func (p *teiParser) resolveLanguage(root *etree.Element, entries []*etree.Element, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	candidates := []*etree.Element{root}
	if text := root.SelectElement("text"); text != nil {
		candidates = append([]*etree.Element{text}, candidates...)
		if body := text.SelectElement("body"); body != nil {
			candidates = append([]*etree.Element{body}, candidates...)
		}
	}
	for _, el := range candidates {
		if raw := el.SelectAttrValue("xml:lang", ""); raw != "" {
			return normalizeTEILanguage(el, raw)
		}
	}

	counts := map[string]int{}
	for _, entry := range entries {
		for _, orth := range entry.FindElements(".//orth") {
			if raw := inheritedLang(orth); raw != "" {
				lang, err := normalizeTEILanguage(orth, raw)
				if err != nil {
					return "", err
				}
				counts[lang]++
			}
		}
	}
	best := ""
	for _, lang := range sortedKeys(counts) {
		if counts[lang] > counts[best] {
			best = lang
		}
	}
	return best, nil
}

func readTEIHeader(header *etree.Element, dict *entity.Dictionary) {
	if el := header.FindElement(".//titleStmt/title"); el != nil {
		dict.Title = textContent(el)
	}
	for _, el := range header.FindElements(".//titleStmt/author") {
		dict.Creators = append(dict.Creators, teiAttribution(el))
	}
	for _, el := range header.FindElements(".//publicationStmt/publisher") {
		dict.Publishers = append(dict.Publishers, teiAttribution(el))
	}
	if el := header.FindElement(".//availability/licence"); el != nil {
		dict.License = el.SelectAttrValue("target", "")
		if dict.License == "" {
			dict.License = textContent(el)
		}
	}
	if el := header.FindElement(".//notesStmt/note"); el != nil {
		dict.Description = textContent(el)
	}
}

func teiAttribution(el *etree.Element) entity.Attribution {
	name := el.SelectElement("name")
	if name == nil {
		name = el.SelectElement("persName")
	}
	if name == nil {
		name = el.SelectElement("orgName")
	}
	if name == nil {
		return entity.NameAttribution(textContent(el))
	}
	email := ""
	if e := el.SelectElement("email"); e != nil {
		email = textContent(e)
	}
	homepage := ""
	if ptr := el.SelectElement("ptr"); ptr != nil {
		homepage = ptr.SelectAttrValue("target", "")
	}
	return entity.ContactAttribution(textContent(name), email, homepage)
}

func (p *teiParser) entry(el *etree.Element) (*entity.Entry, error) {
	e := &entity.Entry{
		OriginID: el.SelectAttrValue("xml:id", ""),
		Type:     entity.EntryTypeLexicalEntry,
		Language: p.lang,
	}
	if et, ok := entity.ParseEntryType(el.SelectAttrValue("type", "")); ok {
		e.Type = et
	}
	if raw := inheritedLang(el); raw != "" {
		lang, err := normalizeTEILanguage(el, raw)
		if err != nil {
			return nil, err
		}
		e.Language = lang
	}

	forms := el.SelectElements("form")
	lemmaForm := lo.FindOrElse(forms, nil, func(f *etree.Element) bool {
		return f.SelectAttrValue("type", "") == "lemma"
	})
	if lemmaForm == nil && len(forms) > 0 {
		lemmaForm = forms[0]
	}
	if lemmaForm == nil {
		return nil, teiErrorf(el, "entry has no lemma form")
	}
	var err error
	if e.CanonicalForm, err = p.form(lemmaForm, e.Language); err != nil {
		return nil, err
	}
	if e.CanonicalForm.WrittenRep.Empty() {
		return nil, teiErrorf(lemmaForm, "lemma form has no orth")
	}
	others := append(lemmaForm.SelectElements("form"), lo.Without(forms, lemmaForm)...)
	for _, f := range others {
		form, err := p.form(f, e.Language)
		if err != nil {
			return nil, err
		}
		if !form.Empty() {
			e.OtherForms = append(e.OtherForms, form)
		}
	}

	if e.PartOfSpeech, err = p.partOfSpeech(el); err != nil {
		return nil, err
	}
	for _, gg := range gramGroups(el) {
		for _, it := range gg.SelectElements("iType") {
			if v := textContent(it); v != "" {
				e.MorphologicalPatterns = append(e.MorphologicalPatterns, v)
			}
		}
	}

	for _, s := range el.SelectElements("sense") {
		sense, err := p.sense(s, e.Language)
		if err != nil {
			return nil, err
		}
		if len(sense.Definitions) > 0 || len(sense.References) > 0 {
			e.Senses = append(e.Senses, sense)
		}
	}

	for _, etym := range el.SelectElements("etym") {
		if v := textContent(etym); v != "" {
			e.Etymology = append(e.Etymology, v)
		}
	}
	for _, usg := range el.SelectElements("usg") {
		if v := textContent(usg); v != "" {
			e.Usage = append(e.Usage, v)
		}
	}
	return e, nil
}

// form reads orth and pron children. Nested forms are handled by the caller.
func (p *teiParser) form(el *etree.Element, fallback string) (entity.Form, error) {
	f := entity.Form{WrittenRep: entity.LangValues{}, PhoneticRep: entity.LangValues{}}
	for _, child := range el.ChildElements() {
		var dst entity.LangValues
		switch child.Tag {
		case "orth":
			dst = f.WrittenRep
		case "pron":
			dst = f.PhoneticRep
		default:
			continue
		}
		lang, err := p.literalLanguage(child, fallback)
		if err != nil {
			return f, err
		}
		if v := textContent(child); v != "" {
			dst.Add(lang, v)
		}
	}
	return f, nil
}

// gramGroups returns the gramGrp elements of the entry and its forms, skipping senses.
func gramGroups(entry *etree.Element) []*etree.Element {
	groups := entry.SelectElements("gramGrp")
	for _, f := range entry.SelectElements("form") {
		groups = append(groups, f.SelectElements("gramGrp")...)
	}
	return groups
}

func (p *teiParser) partOfSpeech(entry *etree.Element) (entity.PartOfSpeech, error) {
	var found []entity.PartOfSpeech
	loc := entry
	for _, gg := range gramGroups(entry) {
		for _, child := range gg.ChildElements() {
			isPOS := child.Tag == "pos" || (child.Tag == "gram" && child.SelectAttrValue("type", "") == "pos")
			if !isPOS {
				continue
			}
			loc = gg
			raw := child.SelectAttrValue("norm", "")
			if raw == "" {
				raw = textContent(child)
			}
			pos, err := entity.ParsePartOfSpeech(raw)
			if err != nil {
				return "", teiErrorf(gg, "%v", err)
			}
			if !lo.Contains(found, pos) {
				found = append(found, pos)
			}
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", teiErrorf(loc, "entry has no part of speech")
	default:
		return "", teiErrorf(loc, "entry has %d parts of speech %v; exactly one is required", len(found), found)
	}
}

func (p *teiParser) sense(el *etree.Element, fallback string) (entity.Sense, error) {
	s := entity.Sense{ID: el.SelectAttrValue("xml:id", "")}
	defs := entity.LangValues{}
	for _, def := range el.FindElements(".//def") {
		lang, err := p.literalLanguage(def, fallback)
		if err != nil {
			return s, err
		}
		if v := textContent(def); v != "" {
			defs.Add(lang, v)
		}
	}
	if !defs.Empty() {
		s.Definitions = make(map[string]string, len(defs))
		for _, lang := range defs.Languages() {
			s.Definitions[lang] = strings.Join(defs[lang], "; ")
		}
	}
	for _, path := range []string{".//ref", ".//ptr"} {
		for _, ref := range el.FindElements(path) {
			if target := ref.SelectAttrValue("target", ""); target != "" && !lo.Contains(s.References, target) {
				s.References = append(s.References, target)
			}
		}
	}
	return s, nil
}

// literalLanguage is the nearest xml:lang below the entry, then the entry language.
func (p *teiParser) literalLanguage(el *etree.Element, fallback string) (string, error) {
	for cur := el; cur != nil && cur.Tag != "entry"; cur = cur.Parent() {
		if raw := cur.SelectAttrValue("xml:lang", ""); raw != "" {
			return normalizeTEILanguage(cur, raw)
		}
	}
	if fallback != "" {
		return fallback, nil
	}
	return p.lang, nil
}

func inheritedLang(el *etree.Element) string {
	for cur := el; cur != nil; cur = cur.Parent() {
		if raw := cur.SelectAttrValue("xml:lang", ""); raw != "" {
			return raw
		}
	}
	return ""
}

func normalizeTEILanguage(el *etree.Element, raw string) (string, error) {
	lang, err := entity.NormalizeLanguage(raw)
	if err != nil {
		return "", teiErrorf(el, "%v", err)
	}
	return lang, nil
}

// textContent concatenates every text node below el and collapses whitespace.
func textContent(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
				b.WriteByte(' ')
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return collapseSpace(b.String())
}

// elementPath renders /TEI/text/body/entry[3], indexing only repeated siblings.
func elementPath(el *etree.Element) string {
	var segs []string
	for cur := el; cur != nil && cur.Tag != ""; cur = cur.Parent() {
		seg := cur.Tag
		if parent := cur.Parent(); parent != nil {
			same := parent.SelectElements(cur.Tag)
			if len(same) > 1 {
				seg = fmt.Sprintf("%s[%d]", cur.Tag, lo.IndexOf(same, cur)+1)
			}
		}
		segs = append([]string{seg}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

func teiErrorf(el *etree.Element, format string, args ...any) error {
	return &entity.ParseError{Format: string(FormatTEI), Location: elementPath(el), Msg: fmt.Sprintf(format, args...)}
}
