package catalog

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchWholeValue(t *testing.T) {
	cat := MustNew()

	tests := []struct {
		value string
		want  Category
		ok    bool
	}{
		{"jane.doe@company.com", CategoryEmail, true},
		{"123456789", CategoryAccountNumber, true},
		{"123-456-789", CategoryAccountNumber, true},
		{"192.168.1.24", CategoryIPAddress, true},
		{"company.com", CategoryDomain, true},
		{"078-05-1120", CategoryOther, true},
		{"wire transfer", "", false},
		{"", "", false},
		{"25000", "", false},
	}

	for _, tt := range tests {
		got, ok := cat.Match(tt.value)
		assert.Equal(t, tt.ok, ok, "value %q", tt.value)
		if tt.ok {
			assert.Equal(t, tt.want, got, "value %q", tt.value)
		}
	}
}

func TestScanEmbedded(t *testing.T) {
	cat := MustNew()

	spans := cat.Scan("Employee jane.doe@company.com received a phishing email")
	require.Len(t, spans, 1)
	assert.Equal(t, CategoryEmail, spans[0].Category)
	assert.Equal(t, "jane.doe@company.com", spans[0].Raw)
	assert.Equal(t, "jane.doe@company.com", spans[0].Value)
}

func TestScanClaimsLeftmostNonOverlapping(t *testing.T) {
	cat := MustNew()

	// The email claims its span first; the later domain rule must not
	// re-match company.com inside it.
	spans := cat.Scan("contact jane.doe@company.com or visit company.com")
	require.Len(t, spans, 2)
	assert.Equal(t, CategoryEmail, spans[0].Category)
	assert.Equal(t, CategoryDomain, spans[1].Category)
	assert.Equal(t, "company.com", spans[1].Raw)
}

func TestScanProtectsTokens(t *testing.T) {
	cat := MustNew()

	// An all-digit truncated hash must not be claimed by the account rule.
	assert.Empty(t, cat.Scan("transfer from [ACCOUNT_NUMBER:123456] confirmed"))
	assert.Empty(t, cat.Scan("[EMAIL:ab12cd] received a phishing email"))
}

func TestScanCanonicalizesAccountSeparators(t *testing.T) {
	cat := MustNew()

	a := cat.Scan("account 123-456-789 flagged")
	b := cat.Scan("account 123456789 flagged")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Value, b[0].Value)
	assert.Equal(t, "123456789", a[0].Value)
}

func TestFieldRules(t *testing.T) {
	cat := MustNew()

	got, ok := cat.FieldCategory("linked_accounts")
	require.True(t, ok)
	assert.Equal(t, CategoryLinkedAccount, got)

	got, ok = cat.FieldCategory("Name")
	require.True(t, ok)
	assert.Equal(t, CategoryName, got)

	_, ok = cat.FieldCategory("amount_usd")
	assert.False(t, ok)
}

func TestFieldRuleOptions(t *testing.T) {
	cat := MustNew(WithoutFieldRule("transaction_id"))
	_, ok := cat.FieldCategory("transaction_id")
	assert.False(t, ok)

	cat = MustNew(WithFieldRule("beneficiary", CategoryName))
	got, ok := cat.FieldCategory("beneficiary")
	require.True(t, ok)
	assert.Equal(t, CategoryName, got)
}

func TestNewRejectsBadRules(t *testing.T) {
	_, err := New(WithRule(MatchRule{Category: CategoryOther, Pattern: regexp.MustCompile(`x*`)}))
	assert.Error(t, err, "always-match pattern must be rejected")

	_, err = New(WithRule(MatchRule{Category: "PASSPORT", Pattern: regexp.MustCompile(`\d+`)}))
	assert.Error(t, err, "unknown category must be rejected")
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryEmail.Valid())
	assert.True(t, CategoryOther.Valid())
	assert.False(t, Category("PASSPORT").Valid())
	assert.False(t, Category("").Valid())
}
