// Package catalog holds the registry of detectable sensitive-field patterns.
// The catalog is built once at process start and is read-only afterwards, so
// concurrent redaction operations can share a single instance without locks.
package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Category tags one class of sensitive data. The set is fixed; minting a
// token for anything outside it is a configuration error, never a silent
// fallback to a generic category.
type Category string

const (
	CategoryAccountNumber Category = "ACCOUNT_NUMBER"
	CategoryEmail         Category = "EMAIL"
	CategoryIPAddress     Category = "IP_ADDRESS"
	CategoryName          Category = "NAME"
	CategoryLinkedAccount Category = "LINKED_ACCOUNT"
	CategoryDomain        Category = "DOMAIN"
	CategoryOther         Category = "OTHER"
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAccountNumber, CategoryEmail, CategoryIPAddress,
		CategoryName, CategoryLinkedAccount, CategoryDomain, CategoryOther:
		return true
	}
	return false
}

// tokenPattern matches the reserved placeholder-token syntax. Spans matching
// it are protected before any rule runs, which is what makes re-redacting
// already-redacted text a no-op: a rule can never claim text inside a token,
// even when the truncated hash happens to look like a digit run.
var tokenPattern = regexp.MustCompile(`\[(?:ACCOUNT_NUMBER|EMAIL|IP_ADDRESS|NAME|LINKED_ACCOUNT|DOMAIN|OTHER):[0-9a-f]{4,32}\]`)

// TokenPattern returns the compiled reserved-token matcher.
func TokenPattern() *regexp.Regexp { return tokenPattern }

// MatchRule pairs a category with a value pattern. Canonical, when set,
// normalizes a matched value to the vault's canonical form so that
// differently formatted spellings of the same value share one token.
type MatchRule struct {
	Category  Category
	Pattern   *regexp.Regexp
	Canonical func(string) string
}

// Span is one embedded match found by Scan, in byte offsets of the scanned
// string.
type Span struct {
	Start    int
	End      int
	Category Category
	Raw      string
	// Canonical form of Raw, the key the vault should be asked for.
	Value string
}

// Catalog is the process-wide rule registry. Rules are tried in registration
// order, most specific category first.
type Catalog struct {
	rules      []MatchRule
	fieldRules map[string]Category
}

// Option customizes catalog construction.
type Option func(*Catalog)

// WithFieldRule maps a record field name to a category. A field-rule hit
// redacts the whole leaf value regardless of its shape; this is how
// categories with no reliable value pattern (NAME, LINKED_ACCOUNT) are
// detected.
func WithFieldRule(field string, cat Category) Option {
	return func(c *Catalog) {
		c.fieldRules[strings.ToLower(strings.TrimSpace(field))] = cat
	}
}

// WithoutFieldRule removes one of the default field rules. Exposed so that
// deployments can decide whether structurally ambiguous fields such as
// transaction ids are treated as sensitive.
func WithoutFieldRule(field string) Option {
	return func(c *Catalog) {
		delete(c.fieldRules, strings.ToLower(strings.TrimSpace(field)))
	}
}

// WithRule appends an extra match rule after the defaults.
func WithRule(rule MatchRule) Option {
	return func(c *Catalog) {
		c.rules = append(c.rules, rule)
	}
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
}

func defaultRules() []MatchRule {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return []MatchRule{
		{
			Category:  CategoryEmail,
			Pattern:   regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Canonical: lower,
		},
		{
			Category: CategoryOther, // SSN
			Pattern:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		},
		{
			Category:  CategoryOther, // payment card
			Pattern:   regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`),
			Canonical: stripSeparators,
		},
		{
			Category:  CategoryAccountNumber,
			Pattern:   regexp.MustCompile(`\b\d(?:[ -]?\d){5,17}\b`),
			Canonical: stripSeparators,
		},
		{
			Category: CategoryIPAddress,
			Pattern:  regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`),
		},
		{
			Category: CategoryOther, // URL
			Pattern:  regexp.MustCompile(`\bhttps?://[^\s"']+`),
		},
		{
			Category:  CategoryDomain,
			Pattern:   regexp.MustCompile(`\b(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,}\b`),
			Canonical: lower,
		},
	}
}

func defaultFieldRules() map[string]Category {
	return map[string]Category{
		"account_number":  CategoryAccountNumber,
		"account_id":      CategoryAccountNumber,
		"email":           CategoryEmail,
		"ip_address":      CategoryIPAddress,
		"name":            CategoryName,
		"customer_name":   CategoryName,
		"employee_name":   CategoryName,
		"linked_account":  CategoryLinkedAccount,
		"linked_accounts": CategoryLinkedAccount,
		"domain":          CategoryDomain,
		"ssn":             CategoryOther,
		"card_number":     CategoryOther,
		"transaction_id":  CategoryOther,
		"url":             CategoryOther,
	}
}

// New builds the catalog from the default rule set plus any options and
// validates every rule. An empty or always-matching pattern is rejected
// here rather than surfacing later as an over-redacted record.
func New(opts ...Option) (*Catalog, error) {
	c := &Catalog{
		rules:      defaultRules(),
		fieldRules: defaultFieldRules(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, rule := range c.rules {
		if !rule.Category.Valid() {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, rule.Category)
		}
		if rule.Pattern == nil || rule.Pattern.String() == "" {
			return nil, fmt.Errorf("rule %d (%s): empty pattern", i, rule.Category)
		}
		if rule.Pattern.MatchString("") {
			return nil, fmt.Errorf("rule %d (%s): pattern matches the empty string", i, rule.Category)
		}
	}
	for field, cat := range c.fieldRules {
		if !cat.Valid() {
			return nil, fmt.Errorf("field rule %q: unknown category %q", field, cat)
		}
	}
	return c, nil
}

// MustNew is New for wiring paths where the default catalog cannot fail.
func MustNew(opts ...Option) *Catalog {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Match runs the whole value through the rules in priority order and returns
// the first category whose pattern covers the entire trimmed value.
func (c *Catalog) Match(value string) (Category, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	for _, rule := range c.rules {
		loc := rule.Pattern.FindStringIndex(trimmed)
		if loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
			return rule.Category, true
		}
	}
	return "", false
}

// FieldCategory reports whether a record field name is itself a sensitivity
// signal, independent of the field's value.
func (c *Catalog) FieldCategory(field string) (Category, bool) {
	cat, ok := c.fieldRules[strings.ToLower(strings.TrimSpace(field))]
	return cat, ok
}

// Canonicalize normalizes a raw value for the given category using the first
// matching rule's canonical form, defaulting to a plain trim.
func (c *Catalog) Canonicalize(raw string, cat Category) string {
	for _, rule := range c.rules {
		if rule.Category == cat && rule.Canonical != nil {
			return rule.Canonical(strings.TrimSpace(raw))
		}
	}
	return strings.TrimSpace(raw)
}

// Scan finds embedded sensitive matches inside free text. Rules run in
// priority order; matches are claimed leftmost-first and non-overlapping in
// a single pass, so a later rule never re-scans text already claimed by an
// earlier one. Existing placeholder tokens are protected up front.
func (c *Catalog) Scan(value string) []Span {
	if value == "" {
		return nil
	}

	type claim struct{ start, end int }
	var claimed []claim
	overlaps := func(start, end int) bool {
		for _, cl := range claimed {
			if start < cl.end && cl.start < end {
				return true
			}
		}
		return false
	}

	for _, loc := range tokenPattern.FindAllStringIndex(value, -1) {
		claimed = append(claimed, claim{loc[0], loc[1]})
	}

	var spans []Span
	for _, rule := range c.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(value, -1) {
			if overlaps(loc[0], loc[1]) {
				continue
			}
			raw := value[loc[0]:loc[1]]
			canonical := strings.TrimSpace(raw)
			if rule.Canonical != nil {
				canonical = rule.Canonical(canonical)
			}
			claimed = append(claimed, claim{loc[0], loc[1]})
			spans = append(spans, Span{
				Start:    loc[0],
				End:      loc[1],
				Category: rule.Category,
				Raw:      raw,
				Value:    canonical,
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// HasMatch reports whether any rule matches anywhere inside the value,
// ignoring protected token spans. This is the residual-sensitive-data check
// used on redacted payloads and narratives.
func (c *Catalog) HasMatch(value string) bool {
	return len(c.Scan(value)) > 0
}
