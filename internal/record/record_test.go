package record

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRoundTrip(t *testing.T) {
	in := `{"case_id":"CASE-7","amount":25000.50,"flagged":true,"notes":null,"timeline":[{"step":1},{"step":2}]}`

	v, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if diff := cmp.Diff(in, string(out)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePreservesKeyOrder(t *testing.T) {
	v, err := Parse([]byte(`{"zeta":1,"alpha":2,"mid":3}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	if diff := cmp.Diff(want, v.Keys()); diff != "" {
		t.Errorf("key order (-want +got):\n%s", diff)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	if _, err := Parse([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected error for trailing document")
	}
	if _, err := Parse([]byte(`{"a":`)); err == nil {
		t.Fatal("expected error for truncated document")
	}
}

func TestSetDeleteKeepsOrder(t *testing.T) {
	obj := Object()
	obj.Set("a", String("1"))
	obj.Set("b", String("2"))
	obj.Set("c", String("3"))
	obj.Set("b", String("updated"))
	obj.Delete("a")

	if diff := cmp.Diff([]string{"b", "c"}, obj.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	b, ok := obj.Field("b")
	if !ok || b.StringValue() != "updated" {
		t.Errorf("field b = %q, want %q", b.StringValue(), "updated")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig, err := Parse([]byte(`{"outer":{"inner":"x"},"list":["y"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	clone := orig.Clone()

	inner, _ := clone.Field("outer")
	inner.Set("inner", String("changed"))
	clone.Set("outer", inner)

	got, _ := orig.Field("outer")
	leaf, _ := got.Field("inner")
	if leaf.StringValue() != "x" {
		t.Errorf("original mutated through clone: %q", leaf.StringValue())
	}
}

func TestStrings(t *testing.T) {
	v, err := Parse([]byte(`{"summary":"hello","timeline":[{"note":"a"},{"note":"b"}],"amount":5}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := map[string]string{
		"summary":          "hello",
		"timeline[0].note": "a",
		"timeline[1].note": "b",
	}
	if diff := cmp.Diff(want, v.Strings()); diff != "" {
		t.Errorf("Strings (-want +got):\n%s", diff)
	}
}
