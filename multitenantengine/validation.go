package multitenantengine

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
)

// Schema limits. Each object becomes a CEL variable, so the limits bound the
// size of the tenant's CEL environment.
const (
	maxObjects         = 100
	maxFieldsPerObject = 200
	maxIdentifierLen   = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// fieldTypes are the field types a schema may declare
var fieldTypes = []string{"bool", "bytes", "duration", "float64", "int", "int64", "string", "timestamp"}

// celReserved are words CEL refuses as identifiers or treats as literals
var celReserved = []string{
	"as", "break", "const", "continue", "else", "false", "for", "function", "if",
	"import", "in", "let", "loop", "namespace", "null", "package", "return",
	"true", "var", "void", "while",
}

// ValidateSchema checks a tenant schema before its objects are declared as CEL
// variables. Every problem is reported, objects and fields in name order.
func ValidateSchema(schema Schema) error {
	if len(schema) == 0 {
		return errors.New("schema must declare at least one object")
	}
	if len(schema) > maxObjects {
		return fmt.Errorf("schema declares %d objects, limit is %d", len(schema), maxObjects)
	}

	var errs []error
	for _, object := range slices.Sorted(maps.Keys(schema)) {
		fields := schema[object]
		if err := checkIdentifier(object); err != nil {
			errs = append(errs, fmt.Errorf("object %q: %w", object, err))
		}
		switch {
		case len(fields) == 0:
			errs = append(errs, fmt.Errorf("object %q declares no fields", object))
			continue
		case len(fields) > maxFieldsPerObject:
			errs = append(errs, fmt.Errorf("object %q declares %d fields, limit is %d", object, len(fields), maxFieldsPerObject))
			continue
		}

		for _, field := range slices.Sorted(maps.Keys(fields)) {
			if err := checkIdentifier(field); err != nil {
				errs = append(errs, fmt.Errorf("field %s.%s: %w", object, field, err))
			}
			if typ := fields[field]; !slices.Contains(fieldTypes, typ) {
				errs = append(errs, fmt.Errorf("field %s.%s: unknown type %q, want one of %v", object, field, typ, fieldTypes))
			}
		}
	}
	return errors.Join(errs...)
}

func checkIdentifier(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case len(name) > maxIdentifierLen:
		return fmt.Errorf("name is %d characters, limit is %d", len(name), maxIdentifierLen)
	case !identifierPattern.MatchString(name):
		return fmt.Errorf("name must match %s", identifierPattern)
	case slices.Contains(celReserved, name):
		return fmt.Errorf("%q is reserved in CEL", name)
	}
	return nil
}
