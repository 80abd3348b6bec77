package pedestrian

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanColumns normalizes sensor names: hyphens are spaced out, whitespace
// runs collapsed, the result trimmed and title cased. Order is preserved and
// applying it twice gives the same names.
func CleanColumns(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no columns to clean", models.ErrEmptyInput)
	}

	out := make([]string, len(names))
	for i, name := range names {
		out[i] = cleanColumn(name)
	}
	return out, nil
}

func cleanColumn(name string) string {
	name = strings.ReplaceAll(name, "-", " - ")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return titleCase(strings.TrimSpace(name))
}

// titleCase upper-cases the first cased letter of every run of cased letters
// and lower-cases the rest. Digits and punctuation break a run, so
// "test2name" becomes "Test2Name".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	previousCased := false
	for _, r := range s {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && previousCased:
			b.WriteRune(unicode.ToLower(r))
		case cased:
			b.WriteRune(unicode.ToTitle(r))
		default:
			b.WriteRune(r)
		}
		previousCased = cased
	}
	return b.String()
}

// StandardizeColumnName applies the first location rename whose source is a
// substring of name, or returns name unchanged.
func (t *Transformer) StandardizeColumnName(name string) string {
	for _, r := range t.rules.LocationRenames {
		if strings.Contains(name, r.From) {
			return r.To
		}
	}
	return name
}
