package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs from their `validate` tags
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var defaultValidator = NewValidator()

// ValidateStruct validates a struct with the default validator
func ValidateStruct(s interface{}) error {
	return defaultValidator.Validate(s)
}

// Validate validates a struct. Supported rules: required, omitempty,
// min=N, max=N, oneof=a b c, email. Pointer fields are dereferenced; a
// nil pointer only fails the required rule.
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldName(fieldType), err)
		}
	}

	return nil
}

// validateField validates a single field against its rule list
func (v *Validator) validateField(field reflect.Value, tag string) error {
	rules := strings.Split(tag, ",")

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			for _, rule := range rules {
				if rule == "required" {
					return fmt.Errorf("field is required")
				}
			}
			return nil
		}
		field = field.Elem()
	}

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]
		param := ""
		if len(parts) == 2 {
			param = parts[1]
		}

		switch ruleName {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "omitempty":
			if field.IsZero() {
				return nil
			}

		case "email":
			if field.Kind() == reflect.String {
				email := field.String()
				at := strings.Index(email, "@")
				if at <= 0 || at == len(email)-1 {
					return fmt.Errorf("invalid email format")
				}
			}

		case "min":
			n, err := strconv.Atoi(param)
			if err != nil {
				continue
			}
			if size, ok := fieldSize(field); ok && size < n {
				return fmt.Errorf("minimum is %d", n)
			}

		case "max":
			n, err := strconv.Atoi(param)
			if err != nil {
				continue
			}
			if size, ok := fieldSize(field); ok && size > n {
				return fmt.Errorf("maximum is %d", n)
			}

		case "oneof":
			if field.Kind() != reflect.String {
				continue
			}
			allowed := strings.Fields(param)
			value := field.String()
			match := false
			for _, candidate := range allowed {
				if value == candidate {
					match = true
					break
				}
			}
			if !match {
				return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
			}
		}
	}

	return nil
}

// fieldSize returns the comparable size of a field: length for strings,
// slices and maps, the value itself for integers.
func fieldSize(field reflect.Value) (int, bool) {
	switch field.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return field.Len(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(field.Int()), true
	default:
		return 0, false
	}
}

// fieldName prefers the json tag name over the Go field name
func fieldName(fieldType reflect.StructField) string {
	tag := fieldType.Tag.Get("json")
	if tag == "" {
		return fieldType.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" || name == "-" {
		return fieldType.Name
	}
	return name
}
