package sanitize

import (
	"fmt"
	"reflect"
	"regexp"
)

// PII patterns anchored to formatted shapes so random tokens (uuids,
// snowflake ids) do not trip them.
var piiPatterns = []*regexp.Regexp{
	// email addresses
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	// formatted US phone numbers
	regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
	regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.\s]?\d{4}`),
	// E.164-style numbers
	regexp.MustCompile(`\+\d{9,15}\b`),
	// SSNs
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
}

// Scan walks v recursively and rejects any string matching a known PII
// pattern. It covers every reachable string field, so a field added to an
// outbound type is scanned without anyone remembering to opt it in. Returns
// ErrSanitizationFailure on the first hit.
func Scan(v any) error {
	if v == nil {
		return nil
	}
	return scanValue(reflect.ValueOf(v), "")
}

func scanValue(rv reflect.Value, path string) error {
	switch rv.Kind() {
	case reflect.String:
		return scanString(rv.String(), path)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return scanValue(rv.Elem(), path)
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := scanValue(rv.Field(i), joinPath(path, t.Field(i).Name)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := scanValue(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			if err := scanValue(iter.Key(), path); err != nil {
				return err
			}
			if err := scanValue(iter.Value(), joinPath(path, fmt.Sprint(iter.Key().Interface()))); err != nil {
				return err
			}
		}
	}
	return nil
}

func scanString(s, path string) error {
	for _, pattern := range piiPatterns {
		if pattern.MatchString(s) {
			// Deliberately omits the matched value: reporting it would move
			// the identifier into logs.
			return fmt.Errorf("%w: field %s matches pattern %s", ErrSanitizationFailure, path, pattern.String())
		}
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
