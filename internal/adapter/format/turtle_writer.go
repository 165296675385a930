package format

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

const turtlePrefixes = `@prefix ontolex: <http://www.w3.org/ns/lemon/ontolex#> .
@prefix lexinfo: <http://www.lexinfo.net/ontology/3.0/lexinfo#> .
@prefix lime: <http://www.w3.org/ns/lemon/lime#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix dct: <http://purl.org/dc/terms/> .
@prefix foaf: <http://xmlns.com/foaf/0.1/> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
`

var turtleString = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// turtleWriter accumulates predicate-object lists for one subject at a time.
type turtleWriter struct {
	buf   bytes.Buffer
	preds []string
}

func (tw *turtleWriter) add(pred string, objs ...string) {
	if len(objs) == 0 {
		return
	}
	tw.preds = append(tw.preds, pred+" "+strings.Join(objs, " , "))
}

func (tw *turtleWriter) flush(subject string) {
	tw.buf.WriteString("\n")
	tw.buf.WriteString(subject)
	tw.buf.WriteString(" ")
	tw.buf.WriteString(strings.Join(tw.preds, " ;\n    "))
	tw.buf.WriteString(" .\n")
	tw.preds = tw.preds[:0]
}

// writeTurtle renders entries as OntoLex. A non-nil dict adds the lime:Lexicon block.
func writeTurtle(w io.Writer, dict *entity.Dictionary, entries []*entity.Entry) error {
	tw := &turtleWriter{}
	tw.buf.WriteString(turtlePrefixes)

	if dict != nil {
		writeLexicon(tw, dict, entries)
	}
	for _, e := range entries {
		writeTurtleEntry(tw, e)
	}

	_, err := w.Write(tw.buf.Bytes())
	return err
}

func writeLexicon(tw *turtleWriter, dict *entity.Dictionary, entries []*entity.Entry) {
	id := dict.ID
	if id == "" {
		id = "lexicon"
	}
	tw.add("a", "lime:Lexicon")
	if dict.Title != "" {
		tw.add("dct:title", literal(dict.Title, ""))
	}
	if dict.Description != "" {
		tw.add("dct:description", literal(dict.Description, ""))
	}
	if dict.SourceLanguage != "" {
		tw.add("lime:language", literal(dict.SourceLanguage, ""))
	}
	tw.add("dct:creator", attributionObjects(dict.Creators)...)
	tw.add("dct:publisher", attributionObjects(dict.Publishers)...)
	if dict.License != "" {
		if strings.Contains(dict.License, "://") {
			tw.add("dct:license", iriRef(dict.License))
		} else {
			tw.add("dct:license", literal(dict.License, ""))
		}
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, iriRef(entryRef(e)))
	}
	tw.add("lime:entry", refs...)
	tw.flush(iriRef(id))
}

func attributionObjects(as entity.Attributions) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		if a.Kind == entity.AttributionName {
			out = append(out, literal(a.Name, ""))
			continue
		}
		parts := []string{"foaf:name " + literal(a.Name, "")}
		if a.Email != "" {
			parts = append(parts, "foaf:mbox "+iriRef("mailto:"+a.Email))
		}
		if a.Homepage != "" {
			parts = append(parts, "foaf:homepage "+iriRef(a.Homepage))
		}
		out = append(out, "[ "+strings.Join(parts, " ; ")+" ]")
	}
	return out
}

func writeTurtleEntry(tw *turtleWriter, e *entity.Entry) {
	entryType := e.Type
	if entryType == "" {
		entryType = entity.EntryTypeLexicalEntry
	}
	tw.add("a", "ontolex:"+string(entryType))
	if e.Language != "" {
		tw.add("lime:language", literal(e.Language, ""))
	}
	tw.add("ontolex:canonicalForm", formNode(e.CanonicalForm))
	others := make([]string, 0, len(e.OtherForms))
	for _, f := range e.OtherForms {
		others = append(others, formNode(f))
	}
	tw.add("ontolex:otherForm", others...)
	if e.PartOfSpeech != "" {
		tw.add("lexinfo:partOfSpeech", "lexinfo:"+e.PartOfSpeech.Lexinfo())
	}
	for _, mp := range e.MorphologicalPatterns {
		if strings.Contains(mp, "://") {
			tw.add("ontolex:morphologicalPattern", iriRef(mp))
		} else {
			tw.add("ontolex:morphologicalPattern", literal(mp, ""))
		}
	}
	tw.add("lexinfo:etymology", literals(e.Etymology)...)
	tw.add("ontolex:usage", literals(e.Usage)...)

	senseRefs := make([]string, 0, len(e.Senses))
	for i := range e.Senses {
		senseRefs = append(senseRefs, iriRef(e.SenseID(i)))
	}
	tw.add("ontolex:sense", senseRefs...)
	tw.flush(iriRef(entryRef(e)))

	for i, s := range e.Senses {
		tw.add("a", "ontolex:LexicalSense")
		defs := make([]string, 0, len(s.Definitions))
		for _, lang := range sortedKeys(s.Definitions) {
			defs = append(defs, literal(s.Definitions[lang], lang))
		}
		tw.add("skos:definition", defs...)
		refs := make([]string, 0, len(s.References))
		for _, ref := range s.References {
			refs = append(refs, iriRef(ref))
		}
		tw.add("ontolex:reference", refs...)
		tw.flush(iriRef(e.SenseID(i)))
	}
}

func formNode(f entity.Form) string {
	var parts []string
	if reps := langLiterals(f.WrittenRep); len(reps) > 0 {
		parts = append(parts, "ontolex:writtenRep "+strings.Join(reps, " , "))
	}
	if reps := langLiterals(f.PhoneticRep); len(reps) > 0 {
		parts = append(parts, "ontolex:phoneticRep "+strings.Join(reps, " , "))
	}
	if len(parts) == 0 {
		return "[]"
	}
	return "[ " + strings.Join(parts, " ; ") + " ]"
}

func langLiterals(lv entity.LangValues) []string {
	var out []string
	for _, lang := range lv.Languages() {
		for _, v := range lv[lang] {
			out = append(out, literal(v, lang))
		}
	}
	return out
}

func literals(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, literal(v, ""))
	}
	return out
}

func literal(value, lang string) string {
	s := `"` + turtleString.Replace(value) + `"`
	if lang != "" {
		s += "@" + lang
	}
	return s
}

func entryRef(e *entity.Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return e.OriginID
}

// iriRef writes absolute IRIs as they are and anything else as a fragment of the document.
func iriRef(id string) string {
	if !strings.Contains(id, ":") {
		id = "#" + id
	}
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range id {
		switch {
		case r <= 0x20, strings.ContainsRune("<>\"{}|^`\\", r):
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('>')
	return b.String()
}
