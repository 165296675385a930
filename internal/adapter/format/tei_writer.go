package format

import (
	"io"
	"strconv"

	"github.com/beevik/etree"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

func writeTEIEntry(w io.Writer, dict *entity.Dictionary, e *entity.Entry) error {
	doc := etree.NewDocument()
	doc.SetRoot(teiEntry(dict, e))
	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

// writeTEIDocument wraps the entries in a TEI document with a header.
func writeTEIDocument(w io.Writer, dict *entity.Dictionary, entries []*entity.Entry) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	tei := doc.CreateElement("TEI")
	tei.CreateAttr("xmlns", TEINamespace)

	header := tei.CreateElement("teiHeader")
	fileDesc := header.CreateElement("fileDesc")
	titleStmt := fileDesc.CreateElement("titleStmt")
	titleStmt.CreateElement("title").SetText(dict.Title)
	for _, a := range dict.Creators {
		teiAttributionElement(titleStmt.CreateElement("author"), a)
	}
	pub := fileDesc.CreateElement("publicationStmt")
	for _, a := range dict.Publishers {
		teiAttributionElement(pub.CreateElement("publisher"), a)
	}
	if dict.License != "" {
		licence := pub.CreateElement("availability").CreateElement("licence")
		licence.CreateAttr("target", dict.License)
	}
	if dict.Description != "" {
		fileDesc.CreateElement("notesStmt").CreateElement("note").SetText(dict.Description)
	}
	fileDesc.CreateElement("sourceDesc").CreateElement("p").SetText("Exported by lexmatrix.")

	text := tei.CreateElement("text")
	if dict.SourceLanguage != "" {
		text.CreateAttr("xml:lang", dict.SourceLanguage)
	}
	body := text.CreateElement("body")
	for _, e := range entries {
		body.AddChild(teiEntry(dict, e))
	}

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func teiAttributionElement(el *etree.Element, a entity.Attribution) {
	if a.Kind == entity.AttributionName {
		el.SetText(a.Name)
		return
	}
	el.CreateElement("name").SetText(a.Name)
	if a.Email != "" {
		el.CreateElement("email").SetText(a.Email)
	}
	if a.Homepage != "" {
		el.CreateElement("ptr").CreateAttr("target", a.Homepage)
	}
}

func teiEntry(dict *entity.Dictionary, e *entity.Entry) *etree.Element {
	entry := etree.NewElement("entry")
	entry.CreateAttr("xml:id", entryRef(e))
	lang := e.Language
	if lang == "" && dict != nil {
		lang = dict.SourceLanguage
	}
	if lang != "" {
		entry.CreateAttr("xml:lang", lang)
	}
	if e.Type != "" && e.Type != entity.EntryTypeLexicalEntry {
		entry.CreateAttr("type", string(e.Type))
	}

	teiForm(entry, "lemma", e.CanonicalForm)
	for _, f := range e.OtherForms {
		teiForm(entry, "inflected", f)
	}

	gramGrp := entry.CreateElement("gramGrp")
	pos := gramGrp.CreateElement("pos")
	pos.CreateAttr("norm", string(e.PartOfSpeech))
	pos.SetText(e.PartOfSpeech.Lexinfo())
	for _, mp := range e.MorphologicalPatterns {
		gramGrp.CreateElement("iType").SetText(mp)
	}

	for i, s := range e.Senses {
		sense := entry.CreateElement("sense")
		sense.CreateAttr("n", strconv.Itoa(i+1))
		sense.CreateAttr("xml:id", e.SenseID(i))
		for _, l := range sortedKeys(s.Definitions) {
			def := sense.CreateElement("def")
			def.CreateAttr("xml:lang", l)
			def.SetText(s.Definitions[l])
		}
		for _, ref := range s.References {
			sense.CreateElement("ptr").CreateAttr("target", ref)
		}
	}

	for _, v := range e.Etymology {
		entry.CreateElement("etym").SetText(v)
	}
	for _, v := range e.Usage {
		entry.CreateElement("usg").SetText(v)
	}
	return entry
}

func teiForm(entry *etree.Element, formType string, f entity.Form) {
	form := entry.CreateElement("form")
	form.CreateAttr("type", formType)
	for _, lang := range f.WrittenRep.Languages() {
		for _, v := range f.WrittenRep[lang] {
			orth := form.CreateElement("orth")
			orth.CreateAttr("xml:lang", lang)
			orth.SetText(v)
		}
	}
	for _, lang := range f.PhoneticRep.Languages() {
		for _, v := range f.PhoneticRep[lang] {
			pron := form.CreateElement("pron")
			pron.CreateAttr("xml:lang", lang)
			pron.SetText(v)
		}
	}
}
