package format

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// Format is an input document syntax.
type Format string

const (
	FormatTurtle Format = "turtle"
	FormatRDFXML Format = "rdfxml"
	FormatTEI    Format = "tei"
	FormatJSON   Format = "json"
)

// ParseFormat maps user supplied format names; "" means sniff the document.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "turtle", "ttl", "ontolex":
		return FormatTurtle, nil
	case "rdfxml", "rdf", "xml", "rdf/xml", "owl":
		return FormatRDFXML, nil
	case "tei":
		return FormatTEI, nil
	case "json", "jsonld", "json-ld":
		return FormatJSON, nil
	default:
		return "", &entity.ValidationError{Field: "format", Msg: fmt.Sprintf("unknown format %q", s)}
	}
}

// TEINamespace must be declared by every TEI document.
const TEINamespace = "http://www.tei-c.org/ns/1.0"

const sniffBytes = 1000

var (
	sniffTEI      = regexp.MustCompile(`<(\w+:)?TEI\b`)
	sniffTurtle   = regexp.MustCompile(`\A(\s*#[^\n]*\n)*\s*(@prefix|@base|PREFIX|BASE)\s`)
	sniffJSON     = regexp.MustCompile(`\A\s*[{\[]`)
	sniffRDFXML   = regexp.MustCompile(`<(\w+:)?RDF\b`)
	sniffTEIEntry = regexp.MustCompile(`\A\s*(<\?xml[^>]*\?>\s*)?<entry\b`)
)

// Sniff guesses the syntax from the first bytes of a document.
func Sniff(data []byte) (Format, error) {
	head := data
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))

	switch {
	case sniffTEI.Match(head):
		if !bytes.Contains(head, []byte(TEINamespace)) {
			return "", &entity.ParseError{Format: string(FormatTEI), Location: "/TEI", Msg: fmt.Sprintf("missing required TEI namespace %q", TEINamespace)}
		}
		return FormatTEI, nil
	case sniffTurtle.Match(head):
		return FormatTurtle, nil
	case sniffJSON.Match(head):
		return FormatJSON, nil
	case sniffRDFXML.Match(head):
		return FormatRDFXML, nil
	case sniffTEIEntry.Match(head):
		return FormatTEI, nil
	default:
		return "", &entity.ParseError{Format: "unknown", Msg: "unrecognized document format; expected OntoLex (Turtle or RDF/XML), TEI or JSON"}
	}
}

// Options steer parsing. Language overrides the dictionary language found in the document.
type Options struct {
	Format   Format
	Language string
}

// Document is one parsed dictionary. Entry ids are not assigned yet; OriginID carries the
// identifier used in the source.
type Document struct {
	Dictionary *entity.Dictionary
	Entries    []*entity.Entry
}

// Parse reads a whole document and normalizes it into the canonical model.
func Parse(r io.Reader, opts Options) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	lang := ""
	if strings.TrimSpace(opts.Language) != "" {
		lang, err = entity.NormalizeLanguage(opts.Language)
		if err != nil {
			return nil, &entity.ValidationError{Field: "sourceLanguage", Msg: err.Error()}
		}
	}

	f := opts.Format
	if f == "" {
		if f, err = Sniff(data); err != nil {
			return nil, err
		}
	}

	switch f {
	case FormatTurtle, FormatRDFXML:
		return parseOntolex(data, f, lang)
	case FormatTEI:
		return parseTEI(data, lang)
	case FormatJSON:
		return parseJSON(data, lang)
	default:
		return nil, &entity.ValidationError{Field: "format", Msg: fmt.Sprintf("unsupported format %q", f)}
	}
}

// ContentType is the media type of an export format.
func ContentType(f entity.ExportFormat) string {
	switch f {
	case entity.ExportJSON:
		return "application/ld+json; charset=utf-8"
	case entity.ExportTEI:
		return "text/xml; charset=utf-8"
	case entity.ExportOntolex:
		return "text/turtle; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ParseExportFormat validates an export format name.
func ParseExportFormat(s string) (entity.ExportFormat, error) {
	switch f := entity.ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case entity.ExportJSON, entity.ExportTEI, entity.ExportOntolex:
		return f, nil
	default:
		return "", &entity.ValidationError{Field: "format", Msg: fmt.Sprintf("unknown export format %q", s)}
	}
}

// SerializeEntry writes a single entry. dict may be nil; when set it supplies the fallback
// language for entries without one.
func SerializeEntry(w io.Writer, f entity.ExportFormat, dict *entity.Dictionary, entry *entity.Entry) error {
	switch f {
	case entity.ExportJSON:
		return writeJSONEntry(w, entry)
	case entity.ExportTEI:
		return writeTEIEntry(w, dict, entry)
	case entity.ExportOntolex:
		return writeTurtle(w, nil, []*entity.Entry{entry})
	default:
		return &entity.ValidationError{Field: "format", Msg: fmt.Sprintf("unknown export format %q", f)}
	}
}

// Serialize writes a whole dictionary: a TEI document with header, a JSON dictionary or a
// Turtle lexicon.
func Serialize(w io.Writer, f entity.ExportFormat, dict *entity.Dictionary, entries []*entity.Entry) error {
	switch f {
	case entity.ExportJSON:
		return writeJSONDictionary(w, dict, entries)
	case entity.ExportTEI:
		return writeTEIDocument(w, dict, entries)
	case entity.ExportOntolex:
		return writeTurtle(w, dict, entries)
	default:
		return &entity.ValidationError{Field: "format", Msg: fmt.Sprintf("unknown export format %q", f)}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// collapseSpace trims s and folds every run of whitespace into a single space. Every parser
// applies it to text values so a document reads the same in each format.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// collapseAll collapses each value and drops the ones left empty.
func collapseAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = collapseSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
