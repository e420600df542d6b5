package fieldtype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("fixed catalog", func(t *testing.T) {
		for _, tag := range []string{
			"string", "string_max", "string_nolim", "integer", "float",
			"boolean", "date", "time", "datetime", "url", "email",
			"phone", "array", "json", "emoji",
		} {
			typ, err := Parse(tag)
			require.NoError(t, err, tag)
			assert.Equal(t, tag, typ.Tag())
		}
	})

	t.Run("string_N family", func(t *testing.T) {
		typ, err := Parse("string_500")
		require.NoError(t, err)
		assert.Equal(t, KindStringN, typ.Kind)
		assert.Equal(t, 500, typ.Length)
		assert.Equal(t, "string_500", typ.Tag())

		_, err = Parse("string_10485760")
		assert.NoError(t, err)
	})

	t.Run("invalid tags", func(t *testing.T) {
		for _, tag := range []string{
			"", "varchar", "STRING", "string_", "string_0",
			"string_10485761", "string_-5", "string_abc", "int",
		} {
			_, err := Parse(tag)
			assert.Error(t, err, tag)
		}
	})
}

func TestColumnSpec(t *testing.T) {
	tests := []struct {
		tag      string
		expected string
	}{
		{"string", "VARCHAR(255)"},
		{"string_max", "VARCHAR(10485760)"},
		{"string_nolim", "TEXT"},
		{"string_500", "VARCHAR(500)"},
		{"integer", "INTEGER"},
		{"float", "REAL"},
		{"boolean", "BOOLEAN"},
		{"date", "DATE"},
		{"time", "TIME"},
		{"datetime", "TIMESTAMP"},
		{"url", "VARCHAR(501)"},
		{"email", "VARCHAR(320)"},
		{"phone", "VARCHAR(20)"},
		{"array", "TEXT"},
		{"json", "TEXT"},
		{"emoji", "VARCHAR(58)"},
	}

	for _, test := range tests {
		typ, err := Parse(test.tag)
		require.NoError(t, err, test.tag)
		assert.Equal(t, test.expected, typ.ColumnSpec(), test.tag)
	}
}

func TestValidateValueStrings(t *testing.T) {
	typ, err := Parse("string_10")
	require.NoError(t, err)

	assert.NoError(t, typ.ValidateValue(strings.Repeat("a", 10)))
	assert.Error(t, typ.ValidateValue(strings.Repeat("a", 11)))
	assert.Error(t, typ.ValidateValue(42))

	nolim, _ := Parse("string_nolim")
	assert.NoError(t, nolim.ValidateValue(strings.Repeat("a", 100000)))
}

func TestValidateValueNumbers(t *testing.T) {
	intType, _ := Parse("integer")
	assert.NoError(t, intType.ValidateValue(3))
	assert.NoError(t, intType.ValidateValue(float64(2147483647)))
	assert.NoError(t, intType.ValidateValue(float64(-2147483647)))
	assert.Error(t, intType.ValidateValue(float64(2147483648)))
	assert.Error(t, intType.ValidateValue(3.5))
	assert.Error(t, intType.ValidateValue("3"))

	floatType, _ := Parse("float")
	assert.NoError(t, floatType.ValidateValue(3.5))
	assert.NoError(t, floatType.ValidateValue(3))
	assert.Error(t, floatType.ValidateValue(float64(2147483648)))
	assert.Error(t, floatType.ValidateValue(true))
}

func TestValidateValueTemporal(t *testing.T) {
	dateType, _ := Parse("date")
	assert.NoError(t, dateType.ValidateValue("2024-02-29"))
	assert.Error(t, dateType.ValidateValue("2024-13-01"))
	assert.Error(t, dateType.ValidateValue("29-02-2024"))

	timeType, _ := Parse("time")
	assert.NoError(t, timeType.ValidateValue("23:59:59"))
	assert.Error(t, timeType.ValidateValue("24:00:00"))
	assert.Error(t, timeType.ValidateValue("12:00"))

	dtType, _ := Parse("datetime")
	assert.NoError(t, dtType.ValidateValue("2024-02-29 23:59:59"))
	assert.Error(t, dtType.ValidateValue("2024-02-29"))
}

func TestValidateValueFormats(t *testing.T) {
	urlType, _ := Parse("url")
	assert.NoError(t, urlType.ValidateValue("https://example.com/path"))
	assert.NoError(t, urlType.ValidateValue("example.com"))
	assert.Error(t, urlType.ValidateValue("not a url at all"))

	emailType, _ := Parse("email")
	assert.NoError(t, emailType.ValidateValue("dev@example.com"))
	assert.Error(t, emailType.ValidateValue("not-an-email"))

	phoneType, _ := Parse("phone")
	assert.NoError(t, phoneType.ValidateValue("555-123-4567"))
	assert.NoError(t, phoneType.ValidateValue("555.123.4567"))
	assert.Error(t, phoneType.ValidateValue("5551234567"))
	assert.Error(t, phoneType.ValidateValue("555-12-34567"))

	emojiType, _ := Parse("emoji")
	assert.NoError(t, emojiType.ValidateValue(":smile:"))
	assert.Error(t, emojiType.ValidateValue("hello"))
	assert.Error(t, emojiType.ValidateValue(":unterminated"))
}

func TestValidateValueContainers(t *testing.T) {
	arrType, _ := Parse("array")
	assert.NoError(t, arrType.ValidateValue([]interface{}{1, "two"}))
	assert.NoError(t, arrType.ValidateValue(`[1,2,3]`))
	assert.Error(t, arrType.ValidateValue(`{"a":1}`))
	assert.Error(t, arrType.ValidateValue(42))

	jsonType, _ := Parse("json")
	assert.NoError(t, jsonType.ValidateValue(map[string]interface{}{"a": 1}))
	assert.NoError(t, jsonType.ValidateValue(`{"a":1}`))
	assert.Error(t, jsonType.ValidateValue(`[1,2]`))
}

func TestStorageValue(t *testing.T) {
	arrType, _ := Parse("array")
	stored, err := arrType.StorageValue([]interface{}{float64(1), "two"})
	require.NoError(t, err)
	assert.Equal(t, `[1,"two"]`, stored)

	jsonType, _ := Parse("json")
	stored, err = jsonType.StorageValue(map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, stored)

	intType, _ := Parse("integer")
	stored, err = intType.StorageValue(float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored)
}

func TestLiteral(t *testing.T) {
	strType, _ := Parse("string")
	lit, err := strType.Literal("it's")
	require.NoError(t, err)
	assert.Equal(t, "'it''s'", lit)

	boolType, _ := Parse("boolean")
	lit, err = boolType.Literal(true)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", lit)

	intType, _ := Parse("integer")
	lit, err = intType.Literal(float64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", lit)
}

func TestFieldValidate(t *testing.T) {
	t.Run("valid fields", func(t *testing.T) {
		fields := []Field{
			{Name: "title", Type: "string"},
			{Name: "count", Type: "integer", NotNull: true},
			{Name: "tag", Type: "emoji", Default: ":smile:"},
			{Name: "created", Type: "datetime", AutoDate: true},
		}
		for _, f := range fields {
			assert.NoError(t, f.Validate(), f.Name)
		}
	})

	t.Run("invalid fields", func(t *testing.T) {
		fields := []Field{
			{Name: "_id", Type: "string"},
			{Name: "bad name", Type: "string"},
			{Name: "f", Type: "varchar"},
			{Name: "f", Type: "string", Default: 42},
			{Name: "f", Type: "integer", AutoDate: true},
			{Name: "f", Type: "date", AutoDate: true, NotNull: true},
			{Name: "f", Type: "date", AutoDate: true, Default: "2024-01-01"},
		}
		for i, f := range fields {
			assert.Error(t, f.Validate(), "case %d", i)
		}
	})
}

func TestValidateFields(t *testing.T) {
	assert.NoError(t, ValidateFields([]Field{
		{Name: "a", Type: "string"},
		{Name: "b", Type: "integer"},
	}))

	err := ValidateFields([]Field{
		{Name: "a", Type: "string"},
		{Name: "a", Type: "integer"},
	})
	assert.Error(t, err)
}

func TestResolveEmoji(t *testing.T) {
	assert.Equal(t, "😀", ResolveEmoji(":smile:"))
	assert.Equal(t, "😂", ResolveEmoji(":joy:"))
	assert.Equal(t, "😭", ResolveEmoji(":cry:"))
	assert.Equal(t, "😡", ResolveEmoji(":angry:"))
	assert.Equal(t, ":shrug:", ResolveEmoji(":shrug:"))
	assert.Equal(t, "plain text", ResolveEmoji("plain text"))
}
