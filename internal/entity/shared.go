package entity

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// IDLength is the length of every generated dictionary, entry and job identifier.
const IDLength = 24

var idPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// NewID returns a fresh lowercase hex identifier. Identifiers generated later sort after earlier ones.
func NewID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return hex.EncodeToString(u[:IDLength/2])
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// NormalizeLanguage reduces a BCP47 or ISO 639 tag to its primary subtag, preferring the two
// letter ISO 639-1 code when the language has one ("eng" -> "en", "en-US" -> "en").
func NormalizeLanguage(tag string) (string, error) {
	raw := strings.TrimSpace(tag)
	parts := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || strings.HasSuffix(raw, "-") || !isPrimarySubtag(parts[0]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, tag)
	}
	for _, sub := range parts[1:] {
		if !isSubtag(sub) {
			return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, tag)
		}
	}
	if base, err := language.ParseBase(parts[0]); err == nil {
		return base.String(), nil
	}
	return parts[0], nil
}

func isPrimarySubtag(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isSubtag(s string) bool {
	if len(s) == 0 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// LangValues groups literal values by language tag, keeping insertion order per tag.
type LangValues map[string][]string

// Add appends value under lang unless it is already present.
func (lv LangValues) Add(lang, value string) {
	for _, v := range lv[lang] {
		if v == value {
			return
		}
	}
	lv[lang] = append(lv[lang], value)
}

// Languages returns the tags in lexical order.
func (lv LangValues) Languages() []string {
	langs := make([]string, 0, len(lv))
	for lang, values := range lv {
		if len(values) > 0 {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// First returns the first value for lang, or "".
func (lv LangValues) First(lang string) string {
	if values := lv[lang]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Contains reports whether value is recorded under any language.
func (lv LangValues) Contains(value string) bool {
	for _, values := range lv {
		for _, v := range values {
			if v == value {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy.
func (lv LangValues) Clone() LangValues {
	if lv == nil {
		return nil
	}
	out := make(LangValues, len(lv))
	for lang, values := range lv {
		out[lang] = append([]string(nil), values...)
	}
	return out
}

// Empty reports whether no language carries a value.
func (lv LangValues) Empty() bool {
	for _, values := range lv {
		if len(values) > 0 {
			return false
		}
	}
	return true
}
