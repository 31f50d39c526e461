package server

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type typeParser func(value string) (any, error)

// kindParsers parse builtin kinds. The parsed value is converted to the field
// type afterwards, so named types such as `type BookID int64` work too.
var kindParsers = map[reflect.Kind]typeParser{
	reflect.String: func(v string) (any, error) { return v, nil },
	reflect.Bool:   func(v string) (any, error) { return strconv.ParseBool(v) },
	reflect.Int:    func(v string) (any, error) { return strconv.Atoi(v) },
	reflect.Int32: func(v string) (any, error) {
		i, err := strconv.ParseInt(v, 10, 32)
		return int32(i), err
	},
	reflect.Int64: func(v string) (any, error) {
		return strconv.ParseInt(v, 10, 64)
	},
	reflect.Float32: func(v string) (any, error) {
		f, err := strconv.ParseFloat(v, 32)
		return float32(f), err
	},
	reflect.Float64: func(v string) (any, error) {
		return strconv.ParseFloat(v, 64)
	},
}

// namedParsers take precedence over kindParsers for struct and array backed types.
var namedParsers = map[reflect.Type]typeParser{
	reflect.TypeOf(uuid.UUID{}): func(v string) (any, error) {
		return uuid.Parse(v)
	},
	reflect.TypeOf(time.Time{}): func(v string) (any, error) {
		return time.Parse(time.RFC3339, v)
	},
}

func parserFor(t reflect.Type) (typeParser, error) {
	if parser, ok := namedParsers[t]; ok {
		return parser, nil
	}
	if parser, ok := kindParsers[t.Kind()]; ok {
		return parser, nil
	}
	return nil, fmt.Errorf("unsupported field type %s", t)
}

// parseField parses a raw string value into the type of the given struct field.
// Empty values fall back to the `default` tag; pointer fields without a value stay nil.
func parseField(field reflect.StructField, value string) (any, error) {
	fieldType := field.Type
	if fieldType.Kind() == reflect.Slice {
		fieldType = fieldType.Elem()
	}

	if value == "" {
		if defaultValue := field.Tag.Get("default"); defaultValue != "" {
			value = defaultValue
		} else if fieldType.Kind() == reflect.Ptr {
			return nil, nil
		}
	}

	isPointer := fieldType.Kind() == reflect.Ptr
	if isPointer {
		fieldType = fieldType.Elem()
	}

	parser, err := parserFor(fieldType)
	if err != nil {
		return nil, err
	}

	parsedValue, err := parser(value)
	if err != nil {
		return nil, err
	}

	converted := reflect.ValueOf(parsedValue).Convert(fieldType)

	if isPointer {
		ptr := reflect.New(fieldType)
		ptr.Elem().Set(converted)
		return ptr.Interface(), nil
	}

	return converted.Interface(), nil
}

func parseFields(field reflect.StructField, values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}

	if field.Type.Kind() == reflect.Slice {
		slice := reflect.MakeSlice(field.Type, 0, len(values))

		for _, v := range values {
			value, err := parseField(field, v)
			if err != nil {
				return nil, err
			}
			if value != nil {
				slice = reflect.Append(slice, reflect.ValueOf(value))
			}
		}
		return slice.Interface(), nil
	}

	return parseField(field, values[0])
}
