package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

const (
	rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	xmlNS = "http://www.w3.org/XML/1998/namespace"
)

// xmlScope carries the in-scope xml:base and xml:lang down the element tree.
type xmlScope struct {
	base string
	lang string
}

func (s xmlScope) enter(el *etree.Element) xmlScope {
	for _, a := range el.Attr {
		if a.Space != "xml" {
			continue
		}
		switch a.Key {
		case "base":
			s.base = resolveIRI(s.base, a.Value)
		case "lang":
			s.lang = a.Value
		}
	}
	return s
}

// rdfXMLReader turns an RDF/XML tree into triples. Node elements may be nested to any depth, as
// written by pretty-printing serializers, or listed flat under rdf:RDF.
type rdfXMLReader struct {
	g      *graph
	blanks int
}

func decodeRDFXML(data []byte) (*graph, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &entity.ParseError{Format: string(FormatRDFXML), Msg: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &entity.ParseError{Format: string(FormatRDFXML), Msg: "document has no root element"}
	}

	r := &rdfXMLReader{g: newGraph()}
	scope := xmlScope{base: ImportBase}.enter(root)
	if root.NamespaceURI() == rdfNS && root.Tag == "RDF" {
		for _, child := range root.ChildElements() {
			if _, err := r.node(child, scope); err != nil {
				return nil, err
			}
		}
		return r.g, nil
	}
	if _, err := r.node(root, xmlScope{base: ImportBase}); err != nil {
		return nil, err
	}
	return r.g, nil
}

func rdfXMLErrorf(el *etree.Element, format string, args ...any) error {
	return &entity.ParseError{Format: string(FormatRDFXML), Location: elementPath(el), Msg: fmt.Sprintf(format, args...)}
}

func (r *rdfXMLReader) blank() term {
	r.blanks++
	return term{kind: termBlank, value: "_:genid" + strconv.Itoa(r.blanks)}
}

// rdfAttr returns the value of the rdf-namespaced attribute key.
func rdfAttr(el *etree.Element, key string) (string, bool) {
	for _, a := range el.Attr {
		if a.Key == key && a.Space != "" && a.NamespaceURI() == rdfNS {
			return a.Value, true
		}
	}
	return "", false
}

// propertyAttrs returns the attributes that abbreviate properties: everything except namespace
// declarations, xml:* and the RDF syntax attributes.
func propertyAttrs(el *etree.Element) []etree.Attr {
	var out []etree.Attr
	for _, a := range el.Attr {
		switch {
		case a.Space == "" || a.Space == "xmlns" || a.Space == "xml":
			continue
		case a.NamespaceURI() == rdfNS:
			switch a.Key {
			case "about", "ID", "nodeID", "resource", "parseType", "datatype", "bagID", "aboutEach", "aboutEachPrefix":
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// describe adds the property attributes of el to subj.
func (r *rdfXMLReader) describe(subj term, attrs []etree.Attr, scope xmlScope) {
	for _, a := range attrs {
		pred := a.NamespaceURI() + a.Key
		if pred == rdfType {
			r.g.add(subj, pred, term{kind: termIRI, value: resolveIRI(scope.base, a.Value)})
			continue
		}
		r.g.add(subj, pred, term{kind: termLiteral, value: a.Value, lang: scope.lang})
	}
}

// node reads a node element and returns its subject.
func (r *rdfXMLReader) node(el *etree.Element, scope xmlScope) (term, error) {
	scope = scope.enter(el)
	ns := el.NamespaceURI()
	if ns == "" {
		return term{}, rdfXMLErrorf(el, "node element %q has no namespace", el.Tag)
	}
	if ns == rdfNS && (el.Tag == "RDF" || el.Tag == "li") {
		return term{}, rdfXMLErrorf(el, "rdf:%s is not allowed as a node element", el.Tag)
	}

	var subj term
	about, hasAbout := rdfAttr(el, "about")
	id, hasID := rdfAttr(el, "ID")
	nodeID, hasNodeID := rdfAttr(el, "nodeID")
	switch {
	case hasAbout:
		subj = term{kind: termIRI, value: resolveIRI(scope.base, about)}
	case hasID:
		subj = term{kind: termIRI, value: resolveIRI(scope.base, "#"+id)}
	case hasNodeID:
		subj = term{kind: termBlank, value: "_:" + nodeID}
	default:
		subj = r.blank()
	}
	r.g.register(subj)

	if ns != rdfNS || el.Tag != "Description" {
		r.g.add(subj, rdfType, term{kind: termIRI, value: ns + el.Tag})
	}
	r.describe(subj, propertyAttrs(el), scope)

	li := 0
	for _, child := range el.ChildElements() {
		if err := r.property(subj, child, scope, &li); err != nil {
			return term{}, err
		}
	}
	return subj, nil
}

// property reads one property element of subj.
func (r *rdfXMLReader) property(subj term, el *etree.Element, scope xmlScope, li *int) error {
	scope = scope.enter(el)
	ns := el.NamespaceURI()
	if ns == "" {
		return rdfXMLErrorf(el, "property element %q has no namespace", el.Tag)
	}
	pred := ns + el.Tag
	if ns == rdfNS && el.Tag == "li" {
		*li++
		pred = rdfNS + "_" + strconv.Itoa(*li)
	}

	if parseType, ok := rdfAttr(el, "parseType"); ok {
		switch parseType {
		case "Resource":
			obj := r.blank()
			r.g.add(subj, pred, obj)
			inner := 0
			for _, child := range el.ChildElements() {
				if err := r.property(obj, child, scope, &inner); err != nil {
					return err
				}
			}
			return nil
		case "Collection":
			head, err := r.collection(el, scope)
			if err != nil {
				return err
			}
			r.g.add(subj, pred, head)
			return nil
		default:
			// XML literals are kept as their text.
			r.g.add(subj, pred, term{kind: termLiteral, value: textContent(el), lang: scope.lang})
			return nil
		}
	}

	attrs := propertyAttrs(el)
	if resource, ok := rdfAttr(el, "resource"); ok {
		obj := term{kind: termIRI, value: resolveIRI(scope.base, resource)}
		r.g.add(subj, pred, obj)
		r.describe(obj, attrs, scope)
		return nil
	}
	if nodeID, ok := rdfAttr(el, "nodeID"); ok {
		obj := term{kind: termBlank, value: "_:" + nodeID}
		r.g.add(subj, pred, obj)
		r.describe(obj, attrs, scope)
		return nil
	}

	children := el.ChildElements()
	switch {
	case len(children) > 1:
		return rdfXMLErrorf(el, "property element holds %d node elements; expected one", len(children))
	case len(children) == 1:
		obj, err := r.node(children[0], scope)
		if err != nil {
			return err
		}
		r.g.add(subj, pred, obj)
		return nil
	}

	text := el.Text()
	if len(attrs) > 0 && strings.TrimSpace(text) == "" {
		obj := r.blank()
		r.g.add(subj, pred, obj)
		r.describe(obj, attrs, scope)
		return nil
	}
	lit := term{kind: termLiteral, value: text, lang: scope.lang}
	if _, ok := rdfAttr(el, "datatype"); ok {
		lit.lang = ""
	}
	r.g.add(subj, pred, lit)
	return nil
}

// collection builds an rdf:List from the node elements of el and returns its head.
func (r *rdfXMLReader) collection(el *etree.Element, scope xmlScope) (term, error) {
	head := term{kind: termIRI, value: rdfNS + "nil"}
	var prev term
	for i, child := range el.ChildElements() {
		item, err := r.node(child, scope)
		if err != nil {
			return term{}, err
		}
		cell := r.blank()
		if i == 0 {
			head = cell
		} else {
			r.g.add(prev, rdfNS+"rest", cell)
		}
		r.g.add(cell, rdfNS+"first", item)
		prev = cell
	}
	if head.kind == termBlank {
		r.g.add(prev, rdfNS+"rest", term{kind: termIRI, value: rdfNS + "nil"})
	}
	return head, nil
}
