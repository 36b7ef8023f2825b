package store

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindText
	KindBool
)

// Value is an optional, typed column value. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	s    string
	b    bool
}

func Null() Value            { return Value{} }
func Int(v int64) Value      { return Value{kind: KindInt, i: v} }
func Text(v string) Value    { return Value{kind: KindText, s: v} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }
func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func IntPtr(v *int64) Value {
	if v == nil {
		return Null()
	}
	return Int(*v)
}

func TextPtr(v *string) Value {
	if v == nil {
		return Null()
	}
	return Text(*v)
}

func BoolPtr(v *bool) Value {
	if v == nil {
		return Null()
	}
	return Bool(*v)
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.s, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsIntPtr() *int64 {
	i, ok := v.Int()
	if !ok {
		return nil
	}
	return &i
}

func (v Value) AsTextPtr() *string {
	s, ok := v.Text()
	if !ok {
		return nil
	}
	return &s
}

func (v Value) AsBoolPtr() *bool {
	b, ok := v.Bool()
	if !ok {
		return nil
	}
	return &b
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindText:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// arg converts the value into a driver argument, booleans are stored as
// 0 or 1.
func (v Value) arg() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindText:
		return v.s
	case KindBool:
		if v.b {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

// valueFromDB converts whatever the driver returned for a column into a
// Value of the column's declared type.
func valueFromDB(t ColumnType, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	switch t {
	case TypeInteger:
		switch v := raw.(type) {
		case int64:
			return Int(v), nil
		case float64:
			return Int(int64(v)), nil
		case bool:
			if v {
				return Int(1), nil
			}
			return Int(0), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return Null(), fmt.Errorf("integer column holds %q", v)
			}
			return Int(i), nil
		}
	case TypeText:
		switch v := raw.(type) {
		case string:
			return Text(v), nil
		case int64:
			return Text(strconv.FormatInt(v, 10)), nil
		case float64:
			return Text(strconv.FormatFloat(v, 'f', -1, 64)), nil
		case bool:
			return Text(strconv.FormatBool(v)), nil
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return Bool(v), nil
		case int64:
			return Bool(v != 0), nil
		case float64:
			return Bool(v != 0), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return Null(), fmt.Errorf("boolean column holds %q", v)
			}
			return Bool(b), nil
		}
	}
	return Null(), fmt.Errorf("unsupported value %T for %s column", raw, t)
}

// Record is a row keyed by column name, a missing key and a null Value both
// mean null.
type Record map[string]Value

// Get returns the value of a field, null if absent.
func (r Record) Get(name string) Value {
	if r == nil {
		return Null()
	}
	return r[name]
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge applies the merge rule: every non-null field of incoming replaces
// the field of prev, null fields of incoming keep what prev had.
func Merge(prev, incoming Record) Record {
	out := make(Record, len(prev)+len(incoming))
	for k, v := range prev {
		if !v.IsNull() {
			out[k] = v
		}
	}
	for k, v := range incoming {
		if !v.IsNull() {
			out[k] = v
		}
	}
	return out
}
