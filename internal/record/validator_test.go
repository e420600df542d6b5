package record

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdbco/mdb/internal/fieldtype"
)

var testFields = []fieldtype.Field{
	{Name: "title", Type: "string"},
	{Name: "count", Type: "integer", NotNull: true},
	{Name: "tags", Type: "array"},
	{Name: "meta", Type: "json"},
	{Name: "mood", Type: "emoji"},
	{Name: "status", Type: "string_10", Default: "new"},
	{Name: "created", Type: "datetime", AutoDate: true},
}

func TestCoerceInsert(t *testing.T) {
	t.Run("missing required field rejected", func(t *testing.T) {
		_, err := CoerceInsert(testFields, map[string]interface{}{"title": "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.NotValid))
		assert.Contains(t, err.Error(), "count")
	})

	t.Run("valid payload coerced", func(t *testing.T) {
		out, err := CoerceInsert(testFields, map[string]interface{}{
			"title": "x",
			"count": float64(3),
			"tags":  []interface{}{"a", "b"},
			"meta":  map[string]interface{}{"k": "v"},
		})
		require.NoError(t, err)
		assert.Equal(t, "x", out["title"])
		assert.Equal(t, int64(3), out["count"])
		assert.Equal(t, `["a","b"]`, out["tags"])
		assert.Equal(t, `{"k":"v"}`, out["meta"])
	})

	t.Run("absent field with default populated", func(t *testing.T) {
		out, err := CoerceInsert(testFields, map[string]interface{}{"count": 1})
		require.NoError(t, err)
		assert.Equal(t, "new", out["status"])
	})

	t.Run("autoDate field left to the column default", func(t *testing.T) {
		out, err := CoerceInsert(testFields, map[string]interface{}{"count": 1})
		require.NoError(t, err)
		_, present := out["created"]
		assert.False(t, present)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := CoerceInsert(testFields, map[string]interface{}{"count": 1, "bogus": "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.NotFound))
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("explicit null clears a nullable field", func(t *testing.T) {
		out, err := CoerceInsert(testFields, map[string]interface{}{"count": 1, "title": nil})
		require.NoError(t, err)
		value, present := out["title"]
		assert.True(t, present)
		assert.Nil(t, value)
	})

	t.Run("explicit null beats the declared default", func(t *testing.T) {
		out, err := CoerceInsert(testFields, map[string]interface{}{"count": 1, "status": nil})
		require.NoError(t, err)
		value, present := out["status"]
		assert.True(t, present)
		assert.Nil(t, value)
	})

	t.Run("explicit null rejected on required field", func(t *testing.T) {
		_, err := CoerceInsert(testFields, map[string]interface{}{"count": nil})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.NotValid))
		assert.Contains(t, err.Error(), "count")
	})

	t.Run("invalid value rejected with field name", func(t *testing.T) {
		_, err := CoerceInsert(testFields, map[string]interface{}{"count": 1, "mood": "hello"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.NotValid))
		assert.Contains(t, err.Error(), "mood")

		out, err := CoerceInsert(testFields, map[string]interface{}{"count": 1, "mood": ":smile:"})
		require.NoError(t, err)
		assert.Equal(t, ":smile:", out["mood"])
	})
}

func TestCoerceUpdate(t *testing.T) {
	// Updates never populate defaults or enforce required fields
	out, err := CoerceUpdate(testFields, map[string]interface{}{"title": "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "y"}, out)

	_, err = CoerceUpdate(testFields, map[string]interface{}{"count": "three"})
	assert.Error(t, err)

	// A null update sets the column back to NULL
	out, err = CoerceUpdate(testFields, map[string]interface{}{"title": nil})
	require.NoError(t, err)
	value, present := out["title"]
	assert.True(t, present)
	assert.Nil(t, value)

	_, err = CoerceUpdate(testFields, map[string]interface{}{"count": nil})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestDecode(t *testing.T) {
	row := map[string]interface{}{
		"_id":   int64(1),
		"title": "x",
		"tags":  `["a","b"]`,
		"meta":  `{"k":"v"}`,
		"mood":  ":smile:",
	}

	decoded := Decode(testFields, row)
	assert.Equal(t, int64(1), decoded["_id"])
	assert.Equal(t, []interface{}{"a", "b"}, decoded["tags"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, decoded["meta"])
	assert.Equal(t, "😀", decoded["mood"])
}
