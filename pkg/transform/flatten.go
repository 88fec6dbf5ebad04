package transform

import (
	"strings"

	"github.com/valyala/fastjson"
)

const (
	// listTruncateLimit caps how many sequence elements are rendered
	// into a flattened row before the ellipsis marker.
	listTruncateLimit = 10

	// listEllipsis marks a truncated sequence value.
	listEllipsis = " …"
)

// Flatten walks a parsed event subtree and stores every scalar leaf in
// row under its dot-joined path. Sequences collapse into a single
// string value: the first ten elements joined with ", ", followed by an
// ellipsis marker when elements were dropped. Pure: the input value is
// not modified.
func Flatten(prefix string, v *fastjson.Value, row *FlatRow) {
	if v == nil {
		return
	}

	switch v.Type() {
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return
		}
		obj.Visit(func(key []byte, child *fastjson.Value) {
			Flatten(joinPath(prefix, string(key)), child, row)
		})

	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return
		}
		row.Set(prefix, renderList(items))

	case fastjson.TypeString:
		row.Set(prefix, string(v.GetStringBytes()))

	case fastjson.TypeNumber:
		row.Set(prefix, v.GetFloat64())

	case fastjson.TypeTrue:
		row.Set(prefix, true)

	case fastjson.TypeFalse:
		row.Set(prefix, false)

	case fastjson.TypeNull:
		row.Set(prefix, nil)
	}
}

// FlattenJSON parses one raw event document and flattens it into a new
// row.
func FlattenJSON(data []byte) (*FlatRow, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}

	row := NewFlatRow()
	Flatten("", v, row)
	return row, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func renderList(items []*fastjson.Value) string {
	n := len(items)
	truncated := false
	if n > listTruncateLimit {
		n = listTruncateLimit
		truncated = true
	}

	parts := make([]string, 0, n)
	for _, item := range items[:n] {
		parts = append(parts, scalarText(item))
	}

	s := strings.Join(parts, ", ")
	if truncated {
		s += listEllipsis
	}
	return s
}

// scalarText renders one sequence element as display text. Strings are
// unquoted; everything else keeps its JSON form.
func scalarText(v *fastjson.Value) string {
	if v == nil {
		return "null"
	}
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}
