package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

const maxBodyBytes = 1 << 20

var ErrEmptyBody = errors.New("request body is required")

// Body fields only match their json tag exactly.
var bodyJSON = jsoniter.Config{CaseSensitive: true}.Froze()

// ParseRequest parses the HTTP request and populates the provided struct with the data from the request.
// It supports parsing from context, headers, path parameters, query parameters, and JSON body.
// The populated struct is validated with its `validate` tags afterwards.
//
// Example usage:
//
//	type MyRequest struct {
//	    Ctx  context.Context `ctx:"context"`
//	    Name string          `header:"X-Name"`
//	    ID   int64           `path:"id"`
//	    Tags []string        `query:"tags"`
//	    Data MyData          `body:"json"`
//	 }
//
//	 var req MyRequest
//	 err := ParseRequest(r, &req)
//
//	 if err != nil {
//	    WriteError(w, http.StatusUnprocessableEntity, err.Error())
//	    return
//	 }
func ParseRequest(r *http.Request, req any) error {
	if err := parseInto(r, req); err != nil {
		return err
	}

	err := ValidateStruct(req)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return nil
}

func parseInto(r *http.Request, req any) error {
	ctx := r.Context()
	typ := reflect.TypeOf(req).Elem()
	val := reflect.ValueOf(req).Elem()

	for i := range typ.NumField() {
		field := typ.Field(i)

		tagName := field.Tag.Get("ctx")
		if tagName != "" {
			val.Field(i).Set(reflect.ValueOf(ctx))
			continue
		}

		tagName = field.Tag.Get("header")
		if tagName != "" {
			value, err := parseField(field, r.Header.Get(tagName))
			if err != nil {
				return fmt.Errorf("error parsing header field %s: %w", tagName, err)
			}

			if value != nil {
				val.Field(i).Set(reflect.ValueOf(value))
			}

			continue
		}

		tagName = field.Tag.Get("path")
		if tagName != "" {
			value, err := parseField(field, r.PathValue(tagName))
			if err != nil {
				return fmt.Errorf("error parsing path field %s: %w", tagName, err)
			}

			if value != nil {
				val.Field(i).Set(reflect.ValueOf(value))
			}

			continue
		}

		tagName = field.Tag.Get("query")
		if tagName != "" {
			queryValues := r.URL.Query()[tagName]

			value, err := parseFields(field, queryValues)
			if err != nil {
				return fmt.Errorf("error parsing query field %s: %w", tagName, err)
			}

			if value != nil {
				val.Field(i).Set(reflect.ValueOf(value))
			}

			continue
		}

		tagName = field.Tag.Get("body")
		if tagName == "json" {
			body := reflect.New(field.Type).Interface()

			err := decodeJSONBody(r, body)
			if err != nil {
				return fmt.Errorf("error parsing body field %s: %w", tagName, err)
			}

			val.Field(i).Set(reflect.ValueOf(body).Elem())

			continue
		}

		if field.Type.Kind() == reflect.Struct && field.IsExported() {
			err := parseInto(r, val.Field(i).Addr().Interface())
			if err != nil {
				return fmt.Errorf("error parsing struct field %s: %w", field.Name, err)
			}
		}
	}

	return nil
}

// decodeJSONBody decodes exactly one JSON value from the request body into dst.
// Unknown fields are ignored.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}

	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyBody
	}
	if !bodyJSON.Valid(data) {
		return errors.New("body is not valid JSON")
	}

	iter := bodyJSON.BorrowIterator(data)
	defer bodyJSON.ReturnIterator(iter)

	iter.ReadVal(dst)
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return iter.Error
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}
