package omitnilpointers

import (
	"reflect"
)

// OmitNilPointers drops nil values and nil pointers from fields and dereferences the rest.
// Nil slices are kept only when explicit is set for their key.
func OmitNilPointers(fields map[string]any, explicit ...string) map[string]any {
	keep := make(map[string]bool, len(explicit))
	for _, key := range explicit {
		keep[key] = true
	}

	omitted := make(map[string]any)
	for key, value := range fields {
		if value == nil {
			if keep[key] {
				omitted[key] = nil
			}
			continue
		}

		v := reflect.ValueOf(value)
		switch v.Kind() {
		case reflect.Ptr:
			if v.IsNil() {
				continue
			}
			omitted[key] = v.Elem().Interface()
		case reflect.Slice, reflect.Map:
			if v.IsNil() && !keep[key] {
				continue
			}
			omitted[key] = value
		default:
			omitted[key] = value
		}
	}

	return omitted
}
