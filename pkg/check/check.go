// Package check validates configuration structs before a run starts. Anything with constraints on
// its fields implements Validatable; Validate walks a value recursively and combines every failed
// constraint into a single error.
package check

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Validatable is implemented by anything that has fields that should be validated.
type Validatable interface {
	Validate() []error
}

type validationError struct {
	errs []error
}

func (v validationError) Error() string {
	errStrings := make([]string, 0, len(v.errs))
	for _, err := range v.errs {
		errStrings = append(errStrings, err.Error())
	}
	sort.Strings(errStrings)
	joined := strings.Join(errStrings, "\n\t")
	return fmt.Sprintf("check failed, %d errors found:\n\t%s", len(v.errs), joined)
}

// Validate returns an error if any Validatable reachable from v fails. The errors of all failed
// validators are combined into a single returned error.
func Validate(v interface{}) error {
	errs := validate(reflect.ValueOf(v), "root")
	if len(errs) == 0 {
		return nil
	}
	return validationError{errs: errs}
}

func validate(v reflect.Value, path string) []error {
	var errs []error
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		errs = append(errs, validate(v.Elem(), path)...)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			errs = append(errs, validate(v.Index(i), fmt.Sprintf("%s[%d]", path, i))...)
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			errs = append(errs, validate(v.MapIndex(key),
				fmt.Sprintf("%s[%v]", path, key.Interface()))...)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Field(i).CanInterface() {
				continue
			}
			errs = append(errs, validate(v.Field(i),
				fmt.Sprintf("%s.%s", path, v.Type().Field(i).Name))...)
		}
	}

	if v.Kind() != reflect.Ptr {
		vp := reflect.New(v.Type())
		vp.Elem().Set(v)
		if validatable, ok := vp.Interface().(Validatable); ok {
			for _, err := range validatable.Validate() {
				if err != nil {
					errs = append(errs, errors.Wrapf(err, "error found at %s", path))
				}
			}
		}
	}

	return errs
}

// GreaterThan returns an error unless actual > minimum.
func GreaterThan[T int | int64 | float64](actual, minimum T, what string) error {
	if actual > minimum {
		return nil
	}
	return errors.Errorf("%s must be greater than %v, got %v", what, minimum, actual)
}

// GreaterThanOrEqualTo returns an error unless actual >= minimum.
func GreaterThanOrEqualTo[T int | int64 | float64](actual, minimum T, what string) error {
	if actual >= minimum {
		return nil
	}
	return errors.Errorf("%s must be greater than or equal to %v, got %v", what, minimum, actual)
}

// In returns an error unless actual is one of the valid values.
func In(actual string, valid []string, what string) error {
	for _, v := range valid {
		if actual == v {
			return nil
		}
	}
	return errors.Errorf("%s must be one of [%s], got %q", what, strings.Join(valid, ", "), actual)
}
