package linker

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eslsoft/lexmatrix/internal/entity"
)

// One N-Triples statement per line, optionally followed by "# score".
var outputLine = regexp.MustCompile(`^<([^>]*)>\s+<([^>]*)>\s+<([^>]*)>\s*\.\s*(?:#\s*(\S+))?$`)

var matchTypes = map[string]entity.LinkType{
	"exactMatch":   entity.LinkExact,
	"closeMatch":   entity.LinkRelated,
	"broadMatch":   entity.LinkBroader,
	"narrowMatch":  entity.LinkNarrower,
	"relatedMatch": entity.LinkRelated,
}

// senseIndex maps sense ids to the id of the entry that owns them.
type senseIndex map[string]string

func (idx senseIndex) add(e *entity.Entry) {
	for i := range e.Senses {
		idx[e.SenseID(i)] = e.ID
	}
}

// parseOutput reads the engine's stdout. Sense IRIs are "<file>#<sense id>".
func parseOutput(out []byte, source, target senseIndex) ([]entity.SenseLink, error) {
	links := []entity.SenseLink{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := outputLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: not a linking statement: %q", n, line)
		}

		linkType, ok := matchTypes[localName(m[2])]
		if !ok {
			return nil, fmt.Errorf("line %d: unsupported relation %q", n, m[2])
		}
		score := 1.0
		if m[4] != "" {
			s, err := strconv.ParseFloat(m[4], 64)
			if err != nil || s < 0 || s > 1 {
				return nil, fmt.Errorf("line %d: score %q is not in [0, 1]", n, m[4])
			}
			score = s
		}

		srcSense, tgtSense := senseID(m[1]), senseID(m[3])
		srcEntry, ok := source[srcSense]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown source sense %q", n, srcSense)
		}
		tgtEntry, ok := target[tgtSense]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown target sense %q", n, tgtSense)
		}
		links = append(links, entity.SenseLink{
			SourceEntry: srcEntry,
			SourceSense: srcSense,
			TargetEntry: tgtEntry,
			TargetSense: tgtSense,
			Type:        linkType,
			Score:       score,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

// localName accepts full IRIs and prefixed names such as skos:exactMatch.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/:"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// senseID strips the file part. Relative sense ids show up as "<file>##<id>".
func senseID(iri string) string {
	if i := strings.IndexByte(iri, '#'); i >= 0 {
		return strings.TrimPrefix(iri[i+1:], "#")
	}
	return iri
}
