// Package fieldtype implements the abstract field-type catalog shared by
// the schema mutation engine (physical column mapping) and the record
// validator (runtime value checks). The two views must stay consistent:
// a value the validator accepts always fits the column the engine created.
package fieldtype

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/errors"
)

// Kind enumerates the fixed catalog plus the parametrized string_N family
type Kind int

const (
	KindString Kind = iota
	KindStringMax
	KindStringNoLim
	KindStringN
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindTime
	KindDateTime
	KindURL
	KindEmail
	KindPhone
	KindArray
	KindJSON
	KindEmoji
)

// Bounds shared by the column mapping and the runtime validator
const (
	MaxStringLength  = 255
	MaxStringNLength = 10485760
	MaxURLLength     = 501
	MaxEmailLength   = 320
	MaxPhoneLength   = 20
	MaxEmojiLength   = 58

	// IntegerBound is the 32-bit signed magnitude limit shared by the
	// integer and float types.
	IntegerBound = 2147483647
)

// Temporal layouts
const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var (
	// stringNPattern recognizes the parametrized family: any tag not in
	// the fixed catalog must match this or it is invalid.
	stringNPattern = regexp.MustCompile(`^string_(\d+)$`)

	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	phonePattern = regexp.MustCompile(`^\d{3}[-.]\d{3}[-.]\d{4}$`)
	emojiPattern = regexp.MustCompile(`^:[A-Za-z0-9_+-]+:$`)
)

// Type is one resolved entry of the catalog. Length carries the bound
// for the string_N family and is zero for every other kind.
type Type struct {
	Kind   Kind
	Length int
}

var fixedCatalog = map[string]Kind{
	"string":       KindString,
	"string_max":   KindStringMax,
	"string_nolim": KindStringNoLim,
	"integer":      KindInteger,
	"float":        KindFloat,
	"boolean":      KindBoolean,
	"date":         KindDate,
	"time":         KindTime,
	"datetime":     KindDateTime,
	"url":          KindURL,
	"email":        KindEmail,
	"phone":        KindPhone,
	"array":        KindArray,
	"json":         KindJSON,
	"emoji":        KindEmoji,
}

// Parse resolves a type tag into a catalog entry. Unknown tags that do
// not match the string_N pattern are invalid.
func Parse(tag string) (Type, error) {
	if kind, ok := fixedCatalog[tag]; ok {
		return Type{Kind: kind}, nil
	}

	m := stringNPattern.FindStringSubmatch(tag)
	if m == nil {
		return Type{}, errors.NotValidf("field type %q", tag)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > MaxStringNLength {
		return Type{}, errors.NotValidf("field type %q: length must be between 1 and %d", tag, MaxStringNLength)
	}
	return Type{Kind: KindStringN, Length: n}, nil
}

// Tag returns the canonical tag for the type
func (t Type) Tag() string {
	switch t.Kind {
	case KindString:
		return "string"
	case KindStringMax:
		return "string_max"
	case KindStringNoLim:
		return "string_nolim"
	case KindStringN:
		return fmt.Sprintf("string_%d", t.Length)
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDateTime:
		return "datetime"
	case KindURL:
		return "url"
	case KindEmail:
		return "email"
	case KindPhone:
		return "phone"
	case KindArray:
		return "array"
	case KindJSON:
		return "json"
	case KindEmoji:
		return "emoji"
	}
	return ""
}

// ColumnSpec returns the physical column definition for the type. The
// mapping is fixed: the validator's bounds are derived from the same
// constants, so accepted values always fit the declared column.
func (t Type) ColumnSpec() string {
	switch t.Kind {
	case KindString:
		return fmt.Sprintf("VARCHAR(%d)", MaxStringLength)
	case KindStringMax:
		return fmt.Sprintf("VARCHAR(%d)", MaxStringNLength)
	case KindStringNoLim:
		return "TEXT"
	case KindStringN:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	case KindBoolean:
		return "BOOLEAN"
	case KindDate:
		return "DATE"
	case KindTime:
		return "TIME"
	case KindDateTime:
		return "TIMESTAMP"
	case KindURL:
		return fmt.Sprintf("VARCHAR(%d)", MaxURLLength)
	case KindEmail:
		return fmt.Sprintf("VARCHAR(%d)", MaxEmailLength)
	case KindPhone:
		return fmt.Sprintf("VARCHAR(%d)", MaxPhoneLength)
	case KindArray, KindJSON:
		return "TEXT"
	case KindEmoji:
		return fmt.Sprintf("VARCHAR(%d)", MaxEmojiLength)
	}
	return ""
}

// IsTemporal reports whether the type may carry the autoDate attribute
func (t Type) IsTemporal() bool {
	return t.Kind == KindDate || t.Kind == KindTime || t.Kind == KindDateTime
}

// AutoDateDefault returns the DDL default expression for autoDate fields
func (t Type) AutoDateDefault() string {
	switch t.Kind {
	case KindDate:
		return "CURRENT_DATE"
	case KindTime:
		return "CURRENT_TIME"
	case KindDateTime:
		return "CURRENT_TIMESTAMP"
	}
	return ""
}

// maxRuneLength returns the character bound for bounded string-family
// types, or zero when the type is not length-bounded.
func (t Type) maxRuneLength() int {
	switch t.Kind {
	case KindString:
		return MaxStringLength
	case KindStringMax:
		return MaxStringNLength
	case KindStringN:
		return t.Length
	case KindURL:
		return MaxURLLength
	case KindEmail:
		return MaxEmailLength
	case KindPhone:
		return MaxPhoneLength
	case KindEmoji:
		return MaxEmojiLength
	}
	return 0
}

// ValidateValue checks a runtime value against the type. The same rules
// apply to declared defaults via ValidateDefault.
func (t Type) ValidateValue(value interface{}) error {
	switch t.Kind {
	case KindString, KindStringMax, KindStringNoLim, KindStringN:
		s, ok := value.(string)
		if !ok {
			return errors.NotValidf("non-string value for %s type", t.Tag())
		}
		return t.checkLength(s)

	case KindInteger:
		n, ok := asNumber(value)
		if !ok {
			return errors.NotValidf("non-numeric value for integer type")
		}
		if n != math.Trunc(n) {
			return errors.NotValidf("non-integer value %v", value)
		}
		if n > IntegerBound || n < -IntegerBound {
			return errors.NotValidf("integer value %v out of range", value)
		}
		return nil

	case KindFloat:
		n, ok := asNumber(value)
		if !ok {
			return errors.NotValidf("non-numeric value for float type")
		}
		if n > IntegerBound || n < -IntegerBound {
			return errors.NotValidf("float value %v out of range", value)
		}
		return nil

	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return errors.NotValidf("non-boolean value for boolean type")
		}
		return nil

	case KindDate:
		return validateTemporal(value, dateLayout, "date")
	case KindTime:
		return validateTemporal(value, timeLayout, "time")
	case KindDateTime:
		return validateTemporal(value, dateTimeLayout, "datetime")

	case KindURL:
		s, ok := value.(string)
		if !ok {
			return errors.NotValidf("non-string value for url type")
		}
		if err := t.checkLength(s); err != nil {
			return err
		}
		return validateURL(s)

	case KindEmail:
		s, ok := value.(string)
		if !ok {
			return errors.NotValidf("non-string value for email type")
		}
		if err := t.checkLength(s); err != nil {
			return err
		}
		if !emailPattern.MatchString(s) {
			return errors.NotValidf("email %q", s)
		}
		return nil

	case KindPhone:
		s, ok := value.(string)
		if !ok {
			return errors.NotValidf("non-string value for phone type")
		}
		if err := t.checkLength(s); err != nil {
			return err
		}
		if !phonePattern.MatchString(s) {
			return errors.NotValidf("phone number %q", s)
		}
		return nil

	case KindArray:
		switch v := value.(type) {
		case []interface{}:
			return nil
		case string:
			var arr []interface{}
			if err := json.Unmarshal([]byte(v), &arr); err != nil {
				return errors.NotValidf("value %q is not a serialized array", v)
			}
			return nil
		default:
			return errors.NotValidf("non-array value for array type")
		}

	case KindJSON:
		switch v := value.(type) {
		case map[string]interface{}:
			return nil
		case string:
			var obj map[string]interface{}
			if err := json.Unmarshal([]byte(v), &obj); err != nil {
				return errors.NotValidf("value %q is not a serialized object", v)
			}
			return nil
		default:
			return errors.NotValidf("non-object value for json type")
		}

	case KindEmoji:
		s, ok := value.(string)
		if !ok {
			return errors.NotValidf("non-string value for emoji type")
		}
		if err := t.checkLength(s); err != nil {
			return err
		}
		if !emojiPattern.MatchString(s) {
			return errors.NotValidf("emoji value %q must be wrapped in colons (:name:)", s)
		}
		return nil
	}
	return errors.NotValidf("field type %q", t.Tag())
}

// ValidateDefault checks a declared default value. Defaults follow the
// same rules as runtime values.
func (t Type) ValidateDefault(value interface{}) error {
	return t.ValidateValue(value)
}

// StorageValue coerces a validated value to its storage form, ready for
// parameter binding. Arrays and objects serialize to text; numeric
// values normalize to their column's host type.
func (t Type) StorageValue(value interface{}) (interface{}, error) {
	switch t.Kind {
	case KindArray, KindJSON:
		if s, ok := value.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Annotatef(err, "serializing %s value", t.Tag())
		}
		return string(b), nil
	case KindInteger:
		n, _ := asNumber(value)
		return int64(n), nil
	case KindFloat:
		n, _ := asNumber(value)
		return n, nil
	default:
		return value, nil
	}
}

// Literal renders a validated default value as a DDL literal
func (t Type) Literal(value interface{}) (string, error) {
	stored, err := t.StorageValue(value)
	if err != nil {
		return "", err
	}
	switch v := stored.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", errors.NotValidf("default value %v for %s type", value, t.Tag())
	}
}

func (t Type) checkLength(s string) error {
	max := t.maxRuneLength()
	if max > 0 && utf8.RuneCountInString(s) > max {
		return errors.NotValidf("value longer than %d characters", max)
	}
	return nil
}

func validateTemporal(value interface{}, layout, tag string) error {
	s, ok := value.(string)
	if !ok {
		return errors.NotValidf("non-string value for %s type", tag)
	}
	if _, err := time.Parse(layout, s); err != nil {
		return errors.NotValidf("%s value %q", tag, s)
	}
	return nil
}

func validateURL(s string) error {
	candidate := s
	if !strings.Contains(candidate, "://") {
		// Scheme is optional; assume http for parsing purposes
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return errors.NotValidf("url %q", s)
	}
	if !strings.Contains(u.Host, ".") && u.Host != "localhost" {
		return errors.NotValidf("url %q", s)
	}
	return nil
}

func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	}
	return 0, false
}
