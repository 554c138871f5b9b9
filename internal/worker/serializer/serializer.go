// Package serializer converts a Lua value captured after an execution
// into a bounded, JSON-safe descriptor. The dispatch order and field
// names mirror worker/core/serializer.py's serialize_variable exactly;
// see SPEC_FULL.md §6.7 for the mapping from Python/pandas types onto
// this repo's Lua value kinds and table-marker conventions.
package serializer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

const (
	maxCollectionItems = 100
	maxStringChars     = 10000
	maxReprChars       = 1000
)

// Serialize dispatches on the dynamic kind of v and returns its
// JSON-marshaled descriptor. It never panics: any failure, including a
// recovered one, degrades to an error-shaped descriptor carrying a repr.
func Serialize(v lua.LValue, name string) (json.RawMessage, error) {
	desc := safeDescriptor(v, name)
	return json.Marshal(desc)
}

func safeDescriptor(v lua.LValue, name string) (desc map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			desc = map[string]interface{}{
				"name":  name,
				"type":  kindName(v),
				"error": fmt.Sprintf("serialization failed: %v", r),
				"repr":  safeRepr(v, 500),
			}
		}
	}()
	return dispatch(v, name)
}

func dispatch(v lua.LValue, name string) map[string]interface{} {
	switch val := v.(type) {
	case *lua.LNilType:
		return map[string]interface{}{"name": name, "type": "NoneType", "value": nil}

	case lua.LBool:
		return map[string]interface{}{"name": name, "type": "boolean", "value": bool(val)}

	case lua.LNumber:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return map[string]interface{}{"name": name, "type": "number", "value": nil}
		}
		return map[string]interface{}{"name": name, "type": "number", "value": f}

	case lua.LString:
		s := string(val)
		truncated := false
		originalLen := len(s)
		if originalLen > maxStringChars {
			s = s[:maxStringChars]
			truncated = true
		}
		return map[string]interface{}{
			"name": name, "type": "string", "value": s,
			"truncated": truncated, "original_length": originalLen,
		}

	case *lua.LTable:
		return dispatchTable(val, name)

	case *lua.LFunction:
		return map[string]interface{}{"name": name, "type": "function", "repr": safeRepr(v, maxReprChars)}

	case *lua.LUserData:
		return map[string]interface{}{"name": name, "type": "userdata", "repr": safeRepr(v, maxReprChars)}

	default:
		return map[string]interface{}{"name": name, "type": kindName(v), "repr": safeRepr(v, maxReprChars)}
	}
}

func dispatchTable(t *lua.LTable, name string) map[string]interface{} {
	if marker, ok := t.RawGetString("__type").(lua.LString); ok {
		switch string(marker) {
		case "dataframe":
			return serializeDataFrame(t, name)
		case "series":
			return serializeSeries(t, name)
		case "ndarray":
			return serializeNDArray(t, name)
		case "set":
			return serializeSet(t, name)
		}
	}

	if isArrayLike(t) {
		return serializeList(t, name)
	}
	return serializeMapping(t, name)
}

// isArrayLike reports whether t's keys are exactly the contiguous
// integers 1..Len() — gopher-lua's own convention for "this is an array".
func isArrayLike(t *lua.LTable) bool {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) {
		count++
	})
	return count == n
}

func serializeList(t *lua.LTable, name string) map[string]interface{} {
	n := t.Len()
	items := make([]interface{}, 0, min(n, maxCollectionItems))
	for i := 1; i <= n && i <= maxCollectionItems; i++ {
		items = append(items, jsonableOrRepr(t.RawGetInt(i)))
	}
	return map[string]interface{}{
		"name": name, "type": "list", "length": n,
		"data": items, "truncated": n > maxCollectionItems,
	}
}

func serializeSet(t *lua.LTable, name string) map[string]interface{} {
	elems := t.RawGetString("elements")
	elemsTable, _ := elems.(*lua.LTable)
	n := 0
	items := make([]interface{}, 0)
	if elemsTable != nil {
		n = elemsTable.Len()
		for i := 1; i <= n && i <= maxCollectionItems; i++ {
			items = append(items, jsonableOrRepr(elemsTable.RawGetInt(i)))
		}
	}
	return map[string]interface{}{
		"name": name, "type": "set", "length": n,
		"data": items, "truncated": n > maxCollectionItems,
	}
}

func serializeMapping(t *lua.LTable, name string) map[string]interface{} {
	keys := make([]string, 0)
	values := make(map[string]interface{})
	count := 0
	truncated := false
	t.ForEach(func(k, v lua.LValue) {
		count++
		if count > maxCollectionItems {
			truncated = true
			return
		}
		ks := k.String()
		keys = append(keys, ks)
		values[ks] = jsonableOrRepr(v)
	})
	sort.Strings(keys)
	return map[string]interface{}{
		"name": name, "type": "mapping", "length": count,
		"keys": keys, "data": values, "truncated": truncated,
	}
}

func serializeDataFrame(t *lua.LTable, name string) map[string]interface{} {
	columnNames := tableStrings(t.RawGetString("columns"))
	rows, _ := t.RawGetString("rows").(*lua.LTable)

	totalRows := 0
	if rows != nil {
		totalRows = rows.Len()
	}
	previewRows := min(totalRows, 10)

	preview := make([]map[string]interface{}, 0, previewRows)
	if rows != nil {
		for i := 1; i <= previewRows; i++ {
			rowTbl, _ := rows.RawGetInt(i).(*lua.LTable)
			rec := make(map[string]interface{})
			if rowTbl != nil {
				for ci, col := range columnNames {
					rec[col] = jsonableOrRepr(rowTbl.RawGetInt(ci + 1))
				}
			}
			preview = append(preview, rec)
		}
	}

	return map[string]interface{}{
		"name": name, "type": "DataFrame",
		"shape":        []int{totalRows, len(columnNames)},
		"rows":         totalRows,
		"columns":      len(columnNames),
		"column_names": columnNames,
		"preview":      preview,
		"preview_rows": previewRows,
	}
}

func serializeSeries(t *lua.LTable, name string) map[string]interface{} {
	values, _ := t.RawGetString("values").(*lua.LTable)
	seriesName := ""
	if sn, ok := t.RawGetString("series_name").(lua.LString); ok {
		seriesName = string(sn)
	}

	n := 0
	if values != nil {
		n = values.Len()
	}
	data := make([]interface{}, 0, min(n, maxCollectionItems))
	if values != nil {
		for i := 1; i <= n && i <= maxCollectionItems; i++ {
			data = append(data, jsonableOrRepr(values.RawGetInt(i)))
		}
	}

	return map[string]interface{}{
		"name": name, "type": "Series",
		"series_name": seriesName, "length": n,
		"data": data, "truncated": n > maxCollectionItems,
	}
}

func serializeNDArray(t *lua.LTable, name string) map[string]interface{} {
	dataTbl, _ := t.RawGetString("data").(*lua.LTable)
	shape := tableInts(t.RawGetString("shape"))

	n := 0
	if dataTbl != nil {
		n = dataTbl.Len()
	}
	items := make([]interface{}, 0, min(n, maxCollectionItems))
	if dataTbl != nil {
		for i := 1; i <= n && i <= maxCollectionItems; i++ {
			v := dataTbl.RawGetInt(i)
			if num, ok := v.(lua.LNumber); ok && math.IsNaN(float64(num)) {
				items = append(items, nil)
				continue
			}
			items = append(items, jsonableOrRepr(v))
		}
	}

	return map[string]interface{}{
		"name": name, "type": "ndarray",
		"shape": shape, "size": n,
		"data": items, "truncated": n > maxCollectionItems,
	}
}

func tableStrings(v lua.LValue) []string {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	out := make([]string, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		out = append(out, t.RawGetInt(i).String())
	}
	return out
}

func tableInts(v lua.LValue) []int {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	out := make([]int, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		if n, ok := t.RawGetInt(i).(lua.LNumber); ok {
			out = append(out, int(n))
		}
	}
	return out
}

// jsonableOrRepr returns a plain Go value JSON can encode directly for
// scalar kinds, falling back to a bounded repr string for anything else —
// the Lua analogue of serializer.py trying json.dumps(item) before
// falling back to _safe_repr(item, 200).
func jsonableOrRepr(v lua.LValue) interface{} {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case lua.LString:
		return string(val)
	default:
		return safeRepr(v, 200)
	}
}

func kindName(v lua.LValue) string {
	if v == nil {
		return "NoneType"
	}
	return v.Type().String()
}

func safeRepr(v lua.LValue, maxLen int) string {
	s := func() (out string) {
		defer func() {
			if r := recover(); r != nil {
				out = fmt.Sprintf("<repr failed: %v>", r)
			}
		}()
		return v.String()
	}()
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
