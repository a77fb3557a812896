package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
)

// ExpandTemplates rewrites ${VAR} references in place across the struct (or
// slice of structs) pointed to by in. Strings, *string and []string are only
// expanded when their field carries a `template` tag other than "-".
// map[string]string values are always expanded. Nested structs, pointers to
// structs and slices of either are walked regardless of tags; unexported
// fields are skipped.
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	if v.Kind() != reflect.Struct && v.Kind() != reflect.Slice {
		return fmt.Errorf("ExpandTemplates expects *struct or *[]struct; got *%s", v.Type())
	}
	return expandValue(v, false, variables)
}

func expandValue(v reflect.Value, tagged bool, variables map[string]string) error {
	switch v.Kind() {
	case reflect.String:
		if !tagged {
			return nil
		}
		expanded, err := Expand(v.String(), variables)
		if err != nil {
			return err
		}
		v.SetString(expanded)

	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		elem := v.Elem()
		switch elem.Kind() {
		case reflect.String:
			if !tagged {
				return nil
			}
			expanded, err := Expand(elem.String(), variables)
			if err != nil {
				return err
			}
			// Fresh pointer so a string shared with the caller is left alone.
			ptr := reflect.New(elem.Type())
			ptr.Elem().SetString(expanded)
			v.Set(ptr)
		case reflect.Struct:
			return expandValue(elem, false, variables)
		}

	case reflect.Struct:
		typ := v.Type()
		for i := range typ.NumField() {
			sf := typ.Field(i)
			if !sf.IsExported() {
				continue
			}
			tag, ok := sf.Tag.Lookup("template")
			if err := expandValue(v.Field(i), ok && tag != "-", variables); err != nil {
				return fmt.Errorf("%s: %w", sf.Name, err)
			}
		}

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		elemKind := v.Type().Elem().Kind()
		if elemKind != reflect.String && elemKind != reflect.Struct && elemKind != reflect.Ptr {
			return nil
		}
		for i := range v.Len() {
			if err := expandValue(v.Index(i), tagged, variables); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}

	case reflect.Map:
		typ := v.Type()
		if v.IsNil() || typ.Key().Kind() != reflect.String || typ.Elem().Kind() != reflect.String {
			return nil
		}
		expanded := reflect.MakeMapWithSize(typ, v.Len())
		var errs error
		iter := v.MapRange()
		for iter.Next() {
			value, err := Expand(iter.Value().String(), variables)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			expanded.SetMapIndex(iter.Key(), reflect.ValueOf(value).Convert(typ.Elem()))
		}
		if errs != nil {
			return errs
		}
		v.Set(expanded)
	}

	return nil
}

// Expand replaces ${VAR} references in the input string using the provided variables map.
// Returns an error if any referenced variable is not in the variables map.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("environment variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}

	return result, nil
}
