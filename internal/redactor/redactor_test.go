package redactor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarforge/internal/catalog"
	"github.com/sarforge/internal/record"
	"github.com/sarforge/internal/vault"
)

func newVault(t *testing.T, caseID string) *vault.Vault {
	t.Helper()
	v, err := vault.New(caseID)
	require.NoError(t, err)
	return v
}

func parse(t *testing.T, data string) record.Value {
	t.Helper()
	rec, err := record.Parse([]byte(data))
	require.NoError(t, err)
	return rec
}

func marshal(t *testing.T, rec record.Value) string {
	t.Helper()
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(out)
}

func TestRedactAccountFieldLeavesAmount(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-1")

	rec := parse(t, `{"account_number":"123456789","amount":25000}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	acct, ok := redacted.Field("account_number")
	require.True(t, ok)
	assert.Regexp(t, `^\[ACCOUNT_NUMBER:[0-9a-f]{6}\]$`, acct.StringValue())

	amount, ok := redacted.Field("amount")
	require.True(t, ok)
	assert.Equal(t, record.KindNumber, amount.Kind())
	assert.Equal(t, "25000", string(amount.NumberValue()))

	require.Len(t, subs, 1)
	assert.Equal(t, "account_number", subs[0].FieldPath)
	assert.Equal(t, catalog.CategoryAccountNumber, subs[0].Category)
}

func TestRedactEmbeddedEmailKeepsSurroundingText(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-2")

	rec := parse(t, `{"summary":"Employee jane.doe@company.com received a phishing email"}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	require.Len(t, subs, 1)
	assert.Equal(t, catalog.CategoryEmail, subs[0].Category)

	summary, _ := redacted.Field("summary")
	want := fmt.Sprintf("Employee %s received a phishing email", subs[0].Token)
	assert.Equal(t, want, summary.StringValue())
}

func TestSameValueSharesOneToken(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-3")

	rec := parse(t, `{"email":"jane.doe@company.com","summary":"reported by jane.doe@company.com yesterday"}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.Equal(t, subs[0].Token, subs[1].Token,
		"same raw value in two fields must reuse the token")
	assert.Equal(t, 1, v.Len())

	email, _ := redacted.Field("email")
	summary, _ := redacted.Field("summary")
	assert.Equal(t, subs[0].Token, email.StringValue())
	assert.Contains(t, summary.StringValue(), subs[0].Token)
}

func TestEquivalentAccountSpellingsShareOneToken(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-3B")

	rec := parse(t, `{"account_number":"123-456-789","summary":"account 123456789 moved funds"}`)
	_, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.Equal(t, subs[0].Token, subs[1].Token)
	assert.Equal(t, 1, v.Len())
}

func TestRedactIsIdempotent(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-4")

	rec := parse(t, `{
		"name": "Jane Doe",
		"email": "jane.doe@company.com",
		"linked_accounts": ["111222333", "444555666"],
		"summary": "Transfers from 111222333 routed via 192.168.1.24 to acme-corp.com"
	}`)

	once, subs, err := r.Redact(rec, v)
	require.NoError(t, err)
	require.NotEmpty(t, subs)

	twice, again, err := r.Redact(once, v)
	require.NoError(t, err)
	assert.Empty(t, again, "re-redacting redacted output minted new tokens")
	assert.Equal(t, marshal(t, once), marshal(t, twice))
}

func TestRedactGluedMatchesExposedBySubstitution(t *testing.T) {
	// The digit run is glued to the email, so no word boundary exists for
	// the account rule until the email becomes a token.
	cat := catalog.MustNew()
	r := New(cat, WithRequiredFields())
	v := newVault(t, "CASE-4C")

	rec := parse(t, `{"summary":"contact user@x.com9999999 for details"}`)
	once, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.Equal(t, catalog.CategoryEmail, subs[0].Category)
	assert.Equal(t, catalog.CategoryAccountNumber, subs[1].Category)

	summary, _ := once.Field("summary")
	assert.False(t, cat.HasMatch(summary.StringValue()),
		"residual sensitive data survived: %q", summary.StringValue())

	twice, again, err := r.Redact(once, v)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, marshal(t, once), marshal(t, twice))
}

func TestFieldRuleLeavesNullLeavesAlone(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-4D")

	rec := parse(t, `{"email":null,"ip_address":null}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	assert.Empty(t, subs)
	assert.Equal(t, 0, v.Len())
	for _, field := range []string{"email", "ip_address"} {
		f, ok := redacted.Field(field)
		require.True(t, ok)
		assert.Equal(t, record.KindNull, f.Kind(), "field %s", field)
	}
}

func TestRedactedOutputHasNoResidualMatches(t *testing.T) {
	cat := catalog.MustNew()
	r := New(cat, WithRequiredFields())
	v := newVault(t, "CASE-4B")

	rec := parse(t, `{
		"customer_name": "John Smith",
		"ip_address": "10.0.0.8",
		"ssn": "078-05-1120",
		"summary": "Contact john.smith@bank.example or 10.0.0.8, card 4111 1111 1111 1111"
	}`)

	redacted, _, err := r.Redact(rec, v)
	require.NoError(t, err)

	for path, s := range redacted.Strings() {
		assert.Falsef(t, cat.HasMatch(s), "residual sensitive data at %s: %q", path, s)
	}
}

func TestLinkedAccountsRedactPerElement(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-5")

	rec := parse(t, `{"linked_accounts":["alpha-ledger","beta-ledger"]}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.NotEqual(t, subs[0].Token, subs[1].Token)
	assert.Equal(t, "linked_accounts[0]", subs[0].FieldPath)
	assert.Equal(t, catalog.CategoryLinkedAccount, subs[0].Category)

	list, _ := redacted.Field("linked_accounts")
	assert.Equal(t, subs[0].Token, list.Index(0).StringValue())
	assert.Equal(t, subs[1].Token, list.Index(1).StringValue())
}

func TestMalformedRecordLeavesVaultEmpty(t *testing.T) {
	r := New(catalog.MustNew())
	v := newVault(t, "CASE-6")

	tests := []struct {
		name string
		data string
	}{
		{"not an object", `["case_id","summary"]`},
		{"missing summary", `{"case_id":"CASE-6","email":"jane.doe@company.com"}`},
		{"null case id", `{"case_id":null,"summary":"text"}`},
		{"blank summary", `{"case_id":"CASE-6","summary":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, subs, err := r.Redact(parse(t, tt.data), v)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord), "got %v", err)
			assert.Nil(t, subs)
		})
	}

	assert.Equal(t, 0, v.Len(), "rejected records must not populate the vault")
}

func TestAllowlistDropsUnknownFields(t *testing.T) {
	r := New(catalog.MustNew(),
		WithRequiredFields("case_id"),
		WithAllowlist("case_id", "summary"))
	v := newVault(t, "CASE-7")

	rec := parse(t, `{"case_id":"CASE-7","summary":"routine review","internal_notes":"do not ship"}`)
	redacted, _, err := r.Redact(rec, v)
	require.NoError(t, err)

	_, ok := redacted.Field("internal_notes")
	assert.False(t, ok, "field outside the allowlist survived")
	_, ok = redacted.Field("summary")
	assert.True(t, ok)
}

func TestSubstitutionOrderFollowsDocument(t *testing.T) {
	r := New(catalog.MustNew(), WithRequiredFields())
	v := newVault(t, "CASE-8")

	rec := parse(t, `{"summary":"first 10.0.0.1 then 10.0.0.2 then 10.0.0.3"}`)
	redacted, subs, err := r.Redact(rec, v)
	require.NoError(t, err)
	require.Len(t, subs, 3)

	summary, _ := redacted.Field("summary")
	text := summary.StringValue()
	prev := -1
	for _, sub := range subs {
		idx := strings.Index(text, sub.Token)
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, prev, "substitutions out of document order")
		prev = idx
	}
}
