package serializer

import (
	"encoding/json"
	"math"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestSerializeNil(t *testing.T) {
	raw, err := Serialize(lua.LNil, "x")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "NoneType", m["type"])
	assert.Nil(t, m["value"])
}

func TestSerializeBool(t *testing.T) {
	raw, err := Serialize(lua.LTrue, "flag")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "boolean", m["type"])
	assert.Equal(t, true, m["value"])
}

func TestSerializeNumber(t *testing.T) {
	raw, err := Serialize(lua.LNumber(42), "n")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "number", m["type"])
	assert.Equal(t, 42.0, m["value"])
}

func TestSerializeNaNNumber(t *testing.T) {
	raw, err := Serialize(lua.LNumber(math.NaN()), "n")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Nil(t, m["value"])
}

func TestSerializeStringTruncation(t *testing.T) {
	long := make([]byte, maxStringChars+50)
	for i := range long {
		long[i] = 'a'
	}
	raw, err := Serialize(lua.LString(long), "s")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "string", m["type"])
	assert.Equal(t, true, m["truncated"])
	assert.Equal(t, float64(maxStringChars+50), m["original_length"])
}

func TestSerializeListTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := L.NewTable()
	tbl.Append(lua.LNumber(1))
	tbl.Append(lua.LNumber(2))
	tbl.Append(lua.LString("three"))

	raw, err := Serialize(tbl, "xs")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "list", m["type"])
	assert.Equal(t, 3.0, m["length"])
}

func TestSerializeMappingTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	tbl := L.NewTable()
	tbl.RawSetString("a", lua.LNumber(1))
	tbl.RawSetString("b", lua.LString("two"))

	raw, err := Serialize(tbl, "m")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "mapping", m["type"])
	data, ok := m["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, data["a"])
}

func TestSerializeDataFrameMarkerTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	cols := L.NewTable()
	cols.Append(lua.LString("a"))

	row1 := L.NewTable()
	row1.Append(lua.LNumber(1))
	row2 := L.NewTable()
	row2.Append(lua.LNumber(2))
	rows := L.NewTable()
	rows.Append(row1)
	rows.Append(row2)

	df := L.NewTable()
	df.RawSetString("__type", lua.LString("dataframe"))
	df.RawSetString("columns", cols)
	df.RawSetString("rows", rows)

	raw, err := Serialize(df, "df")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "DataFrame", m["type"])
	assert.Equal(t, 2.0, m["rows"])
	assert.Equal(t, 1.0, m["columns"])
	assert.Equal(t, []interface{}{"a"}, m["column_names"])
}

func TestSerializeFunctionDegradesToRepr(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	fn := L.NewFunction(func(l *lua.LState) int { return 0 })

	raw, err := Serialize(fn, "f")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "function", m["type"])
	assert.Contains(t, m, "repr")
}

func TestSerializeNeverErrors(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	ud := L.NewUserData()
	raw, err := Serialize(ud, "u")
	require.NoError(t, err)
	m := decode(t, raw)
	assert.Equal(t, "userdata", m["type"])
}
