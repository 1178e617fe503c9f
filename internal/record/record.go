// Package record models arbitrary JSON-shaped case records as a tagged
// variant tree. Giving every leaf an explicit kind is what lets the redactor
// make a static promise about which leaves are eligible for matching: only
// string leaves are ever scanned, while numbers, booleans and nulls pass
// through verbatim.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "invalid"
}

// Value is one node of a record tree. Objects preserve key order so a
// redacted copy serializes with the same field layout as its input.
type Value struct {
	kind   Kind
	str    string
	num    json.Number
	boolv  bool
	items  []Value
	keys   []string
	fields map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean leaf.
func Bool(b bool) Value { return Value{kind: KindBool, boolv: b} }

// Number wraps a numeric leaf, keeping the original textual form.
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// String wraps a string leaf.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array wraps a sequence of values.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Object returns an empty object value.
func Object() Value {
	return Value{kind: KindObject, fields: map[string]Value{}}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// StringValue returns the string payload; valid only for KindString.
func (v Value) StringValue() string { return v.str }

// NumberValue returns the numeric payload; valid only for KindNumber.
func (v Value) NumberValue() json.Number { return v.num }

// BoolValue returns the boolean payload; valid only for KindBool.
func (v Value) BoolValue() bool { return v.boolv }

// Len returns the element count for arrays and field count for objects.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

// Index returns the i-th array element.
func (v Value) Index(i int) Value { return v.items[i] }

// Keys returns object field names in their original order.
func (v Value) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Field looks up an object field by name.
func (v Value) Field(name string) (Value, bool) {
	f, ok := v.fields[name]
	return f, ok
}

// Set stores a field on an object value, appending to the key order on first
// write. Calling Set on a non-object panics; tree construction is a
// programmer-controlled path.
func (v *Value) Set(name string, field Value) {
	if v.kind != KindObject {
		panic(fmt.Sprintf("record: Set on %s value", v.kind))
	}
	if v.fields == nil {
		v.fields = map[string]Value{}
	}
	if _, exists := v.fields[name]; !exists {
		v.keys = append(v.keys, name)
	}
	v.fields[name] = field
}

// Delete removes a field from an object value.
func (v *Value) Delete(name string) {
	if v.kind != KindObject {
		return
	}
	if _, exists := v.fields[name]; !exists {
		return
	}
	delete(v.fields, name)
	for i, k := range v.keys {
		if k == name {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Append adds an element to an array value.
func (v *Value) Append(item Value) {
	if v.kind != KindArray {
		panic(fmt.Sprintf("record: Append on %s value", v.kind))
	}
	v.items = append(v.items, item)
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = item.Clone()
		}
		return Value{kind: KindArray, items: items}
	case KindObject:
		out := Object()
		for _, k := range v.keys {
			out.Set(k, v.fields[k].Clone())
		}
		return out
	default:
		return v
	}
}

// Parse decodes a JSON document into a record tree. Numbers are kept in
// textual form so an untouched leaf round-trips byte-identically.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseNext(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parse record: %w", err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("parse record: trailing data after document")
	}
	return v, nil
}

func parseNext(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, want string", keyTok)
				}
				field, err := parseNext(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, field)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Array()
			for dec.More() {
				item, err := parseNext(dec)
				if err != nil {
					return Value{}, err
				}
				arr.Append(item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// MarshalJSON serializes the tree, emitting object fields in their original
// order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolv))
	case KindNumber:
		if v.num == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(string(v.num))
		}
	case KindString:
		enc, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("record: encode invalid value")
	}
	return nil
}

// Strings collects every string leaf in the tree, sorted by path, keyed by a
// dotted field path ("timeline[2].note"). Used by integrity checks that need
// to sweep the whole redacted payload.
func (v Value) Strings() map[string]string {
	out := map[string]string{}
	v.collectStrings("", out)
	return out
}

func (v Value) collectStrings(path string, out map[string]string) {
	switch v.kind {
	case KindString:
		out[path] = v.str
	case KindArray:
		for i, item := range v.items {
			item.collectStrings(fmt.Sprintf("%s[%d]", path, i), out)
		}
	case KindObject:
		for _, k := range v.keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			v.fields[k].collectStrings(child, out)
		}
	}
}

// SortedPaths returns the string-leaf paths of the tree in lexical order.
func (v Value) SortedPaths() []string {
	strs := v.Strings()
	paths := make([]string, 0, len(strs))
	for p := range strs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
