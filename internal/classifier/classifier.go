// Package classifier assigns discovered cookies to compliance categories
// using an ordered, declarative rule table.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Category is a cookie compliance category.
type Category string

// Categories in priority order. The first rule that matches wins.
const (
	Necessary     Category = "necessary"
	Functional    Category = "functional"
	Analytics     Category = "analytics"
	Advertisement Category = "advertisement"
)

// Default is assigned when no rule matches.
const Default = Functional

// All lists every category in priority order.
var All = []Category{Necessary, Functional, Analytics, Advertisement}

// Parse returns the category named s, ignoring case and surrounding space.
func Parse(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Label returns the human readable form ("advertisement" -> "Advertisement").
func (c Category) Label() string {
	return TitleCase(string(c))
}

// TitleCase upper-cases the first letter of each word, treating
// underscores and hyphens as spaces.
func TitleCase(s string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Rule maps cookie names to a category. Patterns are matched against the
// lower-cased cookie name, so they are written in lower case. Keywords are
// matched as substrings of the lower-cased name, description and source.
type Rule struct {
	Category Category
	Patterns []*regexp.Regexp
	Keywords []string
}

// DefaultRules is the built-in rule table, in priority order.
var DefaultRules = []Rule{
	{
		Category: Necessary,
		Patterns: compile(`^wordpress_`, `^wp-`, `phpsessid`, `session`, `csrf`, `security`),
		Keywords: []string{"login", "auth", "session", "security", "csrf", "nonce", "cart", "checkout"},
	},
	{
		Category: Functional,
		Patterns: compile(`^pref_`, `^settings_`, `language`, `currency`),
		Keywords: []string{"preference", "settings", "language", "currency", "region", "theme"},
	},
	{
		Category: Analytics,
		Patterns: compile(`^_ga`, `^_gid`, `^_gat`, `^_gtm`, `analytics`, `stats`),
		Keywords: []string{"analytics", "tracking", "statistics", "stats", "visitor", "pageview"},
	},
	{
		Category: Advertisement,
		Patterns: compile(`^_fb`, `^fr$`, `ads`, `doubleclick`, `adsystem`),
		Keywords: []string{"ads", "advertising", "marketing", "retargeting", "facebook", "google-ads"},
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Metadata is optional context about a cookie that keywords may match.
type Metadata struct {
	Description string
	Source      string
}

// Classifier evaluates a rule table. It is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules. A nil table uses DefaultRules.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the category for a cookie. It is total: a cookie that
// matches no rule is classified as Default.
func (c *Classifier) Classify(name string, meta Metadata) Category {
	lowerName := strings.ToLower(name)
	haystack := []string{
		lowerName,
		strings.ToLower(meta.Description),
		strings.ToLower(meta.Source),
	}

	for _, rule := range c.rules {
		for _, p := range rule.Patterns {
			if p.MatchString(lowerName) {
				return rule.Category
			}
		}
		for _, kw := range rule.Keywords {
			for _, h := range haystack {
				if h != "" && strings.Contains(h, kw) {
					return rule.Category
				}
			}
		}
	}

	return Default
}
