// Package classify maps ledger entry text to a spending category.
//
// Classification is pure and total: the same text always yields the
// same category and unknown text falls through to CategoryOther. Rules
// are an ordered table; the first rule whose keyword set matches wins,
// so an entry mentioning both water and energy terms resolves by rule
// order, not by closest match.
package classify

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"balancete/internal/core"
)

// Rule binds one category to the keywords that select it. Matching is
// case and diacritic insensitive: "Água" and "AGUA" hit the same rule.
type Rule struct {
	Category core.Category
	Keywords []string
}

// DefaultRules returns the rule table used by the condominium ledger.
// Water precedes energy; the order is part of the contract because
// combined bills ("ENERGIA / AGUA") must resolve deterministically.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: core.CategoryWater,
			Keywords: []string{"agua", "dmae", "saae", "esgoto"},
		},
		{
			Category: core.CategoryEnergy,
			// "41884-1" is the concessionaire account number that shows
			// up on debit descriptions instead of the company name.
			Keywords: []string{"energia", "cemig", "eletric", "41884-1"},
		},
	}
}

// Classifier applies an ordered rule table to entry text.
type Classifier struct {
	rules  []Rule
	logger *slog.Logger
}

// New builds a classifier over the given rule table. Keywords are
// normalized once at construction. A nil logger disables match
// auditing.
func New(rules []Rule, logger *slog.Logger) *Classifier {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = Normalize(kw)
		}
		normalized[i] = Rule{Category: r.Category, Keywords: kws}
	}
	return &Classifier{rules: normalized, logger: logger}
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return New(DefaultRules(), nil)
}

// Classify returns the category of an entry's text fields. It never
// fails; text matching no rule is CategoryOther. When the text matches
// more than one rule the first rule wins and the ambiguity is logged
// for audit, never surfaced as an error.
func (c *Classifier) Classify(e core.LedgerEntry) core.Category {
	text := Normalize(e.Description + " " + e.Detail)

	matched := make([]core.Category, 0, 2)
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, rule.Category)
				break
			}
		}
	}

	if len(matched) == 0 {
		return core.CategoryOther
	}
	if len(matched) > 1 && c.logger != nil {
		c.logger.Debug("entry matched multiple category rules",
			"entry_id", e.ID,
			"description", e.Description,
			"winner", string(matched[0]),
			"matches", len(matched))
	}
	return matched[0]
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics so that "Água" compares
// equal to "agua".
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// transform only fails on malformed UTF-8; fall back to the
		// raw text rather than refusing to classify.
		out = s
	}
	return strings.ToLower(out)
}
