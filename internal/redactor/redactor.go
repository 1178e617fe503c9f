// Package redactor walks a structured case record and replaces sensitive
// values with placeholder tokens from the case's vault, producing a redacted
// deep copy plus the ordered list of substitutions made.
package redactor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarforge/internal/catalog"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/vault"
)

// ErrMalformedRecord is returned when the input violates the expected shape.
// The record is rejected before any redaction is attempted, so no vault
// entries are created for a malformed case.
var ErrMalformedRecord = errors.New("malformed record")

// Substitution records one replacement made during redaction.
type Substitution struct {
	FieldPath string           `json:"field_path"`
	Category  catalog.Category `json:"category"`
	Token     string           `json:"token"`
}

// Redactor applies the pattern catalog to every eligible leaf of a record.
// Numeric, boolean and null leaves pass through verbatim: they are assumed
// non-identifying, which is a deliberate policy boundary, not an oversight.
// The one exception is a field-name rule hit, where the whole value is
// replaced whatever its kind.
type Redactor struct {
	catalog        *catalog.Catalog
	requiredFields []string
	allowedFields  map[string]bool
}

// Option customizes a Redactor.
type Option func(*Redactor)

// WithRequiredFields overrides the top-level fields a record must carry.
func WithRequiredFields(fields ...string) Option {
	return func(r *Redactor) {
		r.requiredFields = fields
	}
}

// WithAllowlist restricts the redacted copy to the given top-level fields;
// everything else is dropped before matching runs.
func WithAllowlist(fields ...string) Option {
	return func(r *Redactor) {
		r.allowedFields = make(map[string]bool, len(fields))
		for _, f := range fields {
			r.allowedFields[f] = true
		}
	}
}

// New builds a Redactor over a shared read-only catalog.
func New(cat *catalog.Catalog, opts ...Option) *Redactor {
	r := &Redactor{
		catalog:        cat,
		requiredFields: []string{"case_id", "summary"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks the record shape without touching any vault state.
func (r *Redactor) Validate(rec record.Value) error {
	if rec.Kind() != record.KindObject {
		return fmt.Errorf("%w: expected object, got %s", ErrMalformedRecord, rec.Kind())
	}
	for _, field := range r.requiredFields {
		f, ok := rec.Field(field)
		if !ok {
			return fmt.Errorf("%w: missing required field %q", ErrMalformedRecord, field)
		}
		if f.Kind() == record.KindNull {
			return fmt.Errorf("%w: required field %q is null", ErrMalformedRecord, field)
		}
		if f.Kind() == record.KindString && strings.TrimSpace(f.StringValue()) == "" {
			return fmt.Errorf("%w: required field %q is empty", ErrMalformedRecord, field)
		}
	}
	return nil
}

// Redact validates the record, then produces a redacted deep copy, populating
// the case vault as new sensitive values are seen. Running it again over its
// own output changes nothing: minted tokens use a reserved syntax the
// catalog never claims.
func (r *Redactor) Redact(rec record.Value, v *vault.Vault) (record.Value, []Substitution, error) {
	if err := r.Validate(rec); err != nil {
		return record.Value{}, nil, err
	}

	work := rec.Clone()
	if r.allowedFields != nil {
		for _, key := range work.Keys() {
			if !r.allowedFields[key] {
				work.Delete(key)
			}
		}
	}

	var subs []Substitution
	redacted, err := r.walk(work, "", "", v, &subs)
	if err != nil {
		return record.Value{}, nil, err
	}
	return redacted, subs, nil
}

func (r *Redactor) walk(val record.Value, path, field string, v *vault.Vault, subs *[]Substitution) (record.Value, error) {
	switch val.Kind() {
	case record.KindObject:
		out := record.Object()
		for _, key := range val.Keys() {
			child, _ := val.Field(key)
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			replaced, err := r.walk(child, childPath, key, v, subs)
			if err != nil {
				return record.Value{}, err
			}
			out.Set(key, replaced)
		}
		return out, nil

	case record.KindArray:
		out := record.Array()
		for i := 0; i < val.Len(); i++ {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			// Array elements inherit the enclosing field name so a
			// list like linked_accounts redacts every element.
			replaced, err := r.walk(val.Index(i), childPath, field, v, subs)
			if err != nil {
				return record.Value{}, err
			}
			out.Append(replaced)
		}
		return out, nil

	case record.KindString:
		return r.redactString(val.StringValue(), path, field, v, subs)

	default:
		if cat, ok := r.catalog.FieldCategory(field); ok {
			// Nulls carry nothing to redact and keep their kind.
			if text := leafText(val); text != "" {
				return r.redactWhole(text, cat, path, v, subs)
			}
		}
		return val, nil
	}
}

func leafText(val record.Value) string {
	switch val.Kind() {
	case record.KindNumber:
		return string(val.NumberValue())
	case record.KindBool:
		if val.BoolValue() {
			return "true"
		}
		return "false"
	}
	return ""
}

func (r *Redactor) redactString(s, path, field string, v *vault.Vault, subs *[]Substitution) (record.Value, error) {
	// Already a bare token: nothing to do. This keeps whole-field rules
	// from re-tokenizing their own output.
	if isToken(s) {
		return record.String(s), nil
	}

	if cat, ok := r.catalog.FieldCategory(field); ok && strings.TrimSpace(s) != "" {
		return r.redactWhole(s, cat, path, v, subs)
	}

	// Substituting a token can expose a word boundary that did not exist in
	// the raw text (an account number glued to an email, say), so the text
	// is rescanned until no rule matches. Token spans are protected by the
	// scanner, which is what makes this loop terminate.
	for {
		spans := r.catalog.Scan(s)
		if len(spans) == 0 {
			return record.String(s), nil
		}

		var b strings.Builder
		last := 0
		for _, span := range spans {
			token, err := v.TokenFor(span.Value, span.Category)
			if err != nil {
				return record.Value{}, fmt.Errorf("redact %s: %w", path, err)
			}
			b.WriteString(s[last:span.Start])
			b.WriteString(token)
			last = span.End
			*subs = append(*subs, Substitution{FieldPath: path, Category: span.Category, Token: token})
		}
		b.WriteString(s[last:])
		s = b.String()
	}
}

func (r *Redactor) redactWhole(s string, cat catalog.Category, path string, v *vault.Vault, subs *[]Substitution) (record.Value, error) {
	if strings.TrimSpace(s) == "" {
		return record.String(s), nil
	}
	canonical := r.catalog.Canonicalize(s, cat)
	token, err := v.TokenFor(canonical, cat)
	if err != nil {
		return record.Value{}, fmt.Errorf("redact %s: %w", path, err)
	}
	*subs = append(*subs, Substitution{FieldPath: path, Category: cat, Token: token})
	return record.String(token), nil
}

func isToken(s string) bool {
	trimmed := strings.TrimSpace(s)
	loc := catalog.TokenPattern().FindStringIndex(trimmed)
	return loc != nil && loc[0] == 0 && loc[1] == len(trimmed)
}
