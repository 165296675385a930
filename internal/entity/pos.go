package entity

import (
	"fmt"
	"strings"
)

// PartOfSpeech is a Universal Dependencies tag (https://universaldependencies.org/u/pos/).
type PartOfSpeech string

const (
	POSAdjective    PartOfSpeech = "ADJ"
	POSAdposition   PartOfSpeech = "ADP"
	POSAdverb       PartOfSpeech = "ADV"
	POSAuxiliary    PartOfSpeech = "AUX"
	POSCoordConj    PartOfSpeech = "CCONJ"
	POSDeterminer   PartOfSpeech = "DET"
	POSInterjection PartOfSpeech = "INTJ"
	POSNoun         PartOfSpeech = "NOUN"
	POSNumeral      PartOfSpeech = "NUM"
	POSParticle     PartOfSpeech = "PART"
	POSPronoun      PartOfSpeech = "PRON"
	POSProperNoun   PartOfSpeech = "PROPN"
	POSPunctuation  PartOfSpeech = "PUNCT"
	POSSubordConj   PartOfSpeech = "SCONJ"
	POSSymbol       PartOfSpeech = "SYM"
	POSVerb         PartOfSpeech = "VERB"
	POSOther        PartOfSpeech = "X"
)

var udToLexinfo = map[PartOfSpeech]string{
	POSAdjective:    "adjective",
	POSAdposition:   "adposition",
	POSAdverb:       "adverb",
	POSAuxiliary:    "auxiliary",
	POSCoordConj:    "coordinatingConjunction",
	POSDeterminer:   "determiner",
	POSInterjection: "interjection",
	POSNoun:         "commonNoun",
	POSNumeral:      "numeral",
	POSParticle:     "particle",
	POSPronoun:      "pronoun",
	POSProperNoun:   "properNoun",
	POSPunctuation:  "punctuation",
	POSSubordConj:   "subordinatingConjunction",
	POSSymbol:       "symbol",
	POSVerb:         "verb",
	POSOther:        "other",
}

// lexinfo terms and dictionary abbreviations seen in the wild, keyed by lower case.
var posAliases = map[string]PartOfSpeech{
	"noun":            POSNoun,
	"n":               POSNoun,
	"substantive":     POSNoun,
	"propernoun":      POSProperNoun,
	"propn":           POSProperNoun,
	"v":               POSVerb,
	"mainverb":        POSVerb,
	"adj":             POSAdjective,
	"a":               POSAdjective,
	"adv":             POSAdverb,
	"preposition":     POSAdposition,
	"postposition":    POSAdposition,
	"prep":            POSAdposition,
	"conjunction":     POSCoordConj,
	"conj":            POSCoordConj,
	"article":         POSDeterminer,
	"art":             POSDeterminer,
	"det":             POSDeterminer,
	"pron":            POSPronoun,
	"personalpronoun": POSPronoun,
	"num":             POSNumeral,
	"cardinalnumeral": POSNumeral,
	"ordinalnumeral":  POSNumeral,
	"interj":          POSInterjection,
	"int":             POSInterjection,
	"part":            POSParticle,
	"modal":           POSAuxiliary,
	"punc":            POSPunctuation,
	"sym":             POSSymbol,
}

func init() {
	for ud, term := range udToLexinfo {
		posAliases[strings.ToLower(term)] = ud
	}
}

// ParsePartOfSpeech maps a UD tag, a lexinfo term (bare, prefixed or as a full IRI) or a common
// dictionary abbreviation onto the UD tag set.
func ParsePartOfSpeech(term string) (PartOfSpeech, error) {
	local := strings.TrimSpace(term)
	if i := strings.LastIndexAny(local, "#/:"); i >= 0 {
		local = local[i+1:]
	}
	if _, ok := udToLexinfo[PartOfSpeech(local)]; ok {
		return PartOfSpeech(local), nil
	}
	if pos, ok := posAliases[strings.ToLower(strings.TrimSuffix(local, "."))]; ok {
		return pos, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPartOfSpeech, term)
}

// Valid reports whether p is one of the UD tags.
func (p PartOfSpeech) Valid() bool {
	_, ok := udToLexinfo[p]
	return ok
}

// Lexinfo returns the lexinfo local name for p.
func (p PartOfSpeech) Lexinfo() string {
	if term, ok := udToLexinfo[p]; ok {
		return term
	}
	return string(p)
}
