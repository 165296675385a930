package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/knakk/rdf"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// ImportBase resolves relative IRIs of imported RDF documents.
const ImportBase = "http://lexmatrix.local/import"

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

type termKind int

const (
	termIRI termKind = iota
	termBlank
	termLiteral
)

type term struct {
	kind  termKind
	value string
	lang  string
}

func (t term) key() string {
	switch t.kind {
	case termIRI:
		return "<" + t.value + ">"
	case termBlank:
		return "_:" + strings.TrimPrefix(t.value, "_:")
	default:
		return fmt.Sprintf("%q@%s", t.value, t.lang)
	}
}

func (t term) node() bool { return t.kind != termLiteral }

// resolveIRI resolves ref against base. Absolute and unparsable references are returned as is.
func resolveIRI(base, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}

func toTerm(t rdf.Term) term {
	switch v := t.(type) {
	case rdf.IRI:
		return term{kind: termIRI, value: resolveIRI(ImportBase, v.String())}
	case rdf.Blank:
		return term{kind: termBlank, value: v.String()}
	case rdf.Literal:
		return term{kind: termLiteral, value: v.String(), lang: v.Lang()}
	default:
		return term{kind: termLiteral, value: t.String()}
	}
}

type edge struct {
	pred string
	obj  term
}

// graph indexes triples by subject, keeping subjects in order of first appearance.
type graph struct {
	subjects []term
	edges    map[string][]edge
}

func newGraph() *graph {
	return &graph{edges: map[string][]edge{}}
}

// register records subj in document order without adding a triple.
func (g *graph) register(subj term) {
	key := subj.key()
	if _, ok := g.edges[key]; !ok {
		g.subjects = append(g.subjects, subj)
		g.edges[key] = nil
	}
}

// add stores one triple. Literal values are whitespace-collapsed like every other parsed text.
func (g *graph) add(subj term, pred string, obj term) {
	if obj.kind == termLiteral {
		obj.value = collapseSpace(obj.value)
	}
	g.register(subj)
	key := subj.key()
	g.edges[key] = append(g.edges[key], edge{pred: pred, obj: obj})
}

func decodeGraph(data []byte, f Format) (*graph, error) {
	if f == FormatRDFXML {
		return decodeRDFXML(data)
	}
	dec := rdf.NewTripleDecoder(bytes.NewReader(data), rdf.Turtle)
	if base, err := rdf.NewIRI(ImportBase); err == nil {
		_ = dec.SetOption(rdf.Base, base)
	}

	g := newGraph()
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &entity.ParseError{Format: string(f), Msg: "malformed RDF", Err: err}
		}
		g.add(toTerm(tr.Subj), tr.Pred.String(), toTerm(tr.Obj))
	}
	return g, nil
}

// localName is the part of an IRI after the last '#' or '/'.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// objects returns the objects of every predicate whose local name is one of names.
func (g *graph) objects(subj term, names ...string) []term {
	var out []term
	for _, e := range g.edges[subj.key()] {
		local := localName(e.pred)
		for _, name := range names {
			if local == name {
				out = append(out, e.obj)
				break
			}
		}
	}
	return out
}

func (g *graph) first(subj term, names ...string) (term, bool) {
	objs := g.objects(subj, names...)
	if len(objs) == 0 {
		return term{}, false
	}
	return objs[0], true
}

// types returns the local names of the rdf:type objects of subj.
func (g *graph) types(subj term) []string {
	var out []string
	for _, e := range g.edges[subj.key()] {
		if e.pred == rdfType && e.obj.kind == termIRI {
			out = append(out, localName(e.obj.value))
		}
	}
	return out
}

func (g *graph) hasType(subj term, names ...string) bool {
	for _, t := range g.types(subj) {
		for _, name := range names {
			if t == name {
				return true
			}
		}
	}
	return false
}

// literals follows nodes through rdf:value, so `skos:definition [ rdf:value "..."@en ]` reads
// the same as a plain literal.
func (g *graph) literals(subj term, names ...string) []term {
	var out []term
	for _, obj := range g.objects(subj, names...) {
		if obj.kind == termLiteral {
			out = append(out, obj)
			continue
		}
		for _, v := range g.objects(obj, "value") {
			if v.kind == termLiteral {
				out = append(out, v)
			}
		}
	}
	return out
}

// languageCounts tallies the language tags of every literal in the graph.
func (g *graph) languageCounts() map[string]int {
	counts := map[string]int{}
	for _, subj := range g.subjects {
		for _, e := range g.edges[subj.key()] {
			if e.obj.kind == termLiteral && e.obj.lang != "" {
				counts[e.obj.lang]++
			}
		}
	}
	return counts
}

// relativeID strips the import base so `<#cat-n>` comes back as "cat-n". Absolute IRIs are kept.
func relativeID(t term) string {
	if t.kind != termIRI {
		return ""
	}
	for _, prefix := range []string{ImportBase + "#", ImportBase + "/", "http://lexmatrix.local/"} {
		if strings.HasPrefix(t.value, prefix) {
			return strings.TrimPrefix(t.value, prefix)
		}
	}
	return t.value
}

// termString renders an IRI as its relative id and a literal as its lexical value.
func termString(t term) string {
	if t.kind == termIRI {
		return relativeID(t)
	}
	return t.value
}
