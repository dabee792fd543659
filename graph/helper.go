package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/vektah/gqlparser/v2/ast"
)

func intValue(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("expected an Int, got %v", v)
}

func intArg(args map[string]interface{}, name string) int {
	if v, ok := args[name]; ok && v != nil {
		n, _ := intValue(v)
		return n
	}
	return 0
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func pageArgs(args map[string]interface{}) (limit int, after *string) {
	if s := stringArg(args, "after"); s != "" {
		after = &s
	}
	return intArg(args, "limit"), after
}

// decodeInput fills dst, a models input struct, from an input object argument.
// Field names become the models' snake_case json names; Decimal and Time values are parsed here.
func decodeInput(inputType string, value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	converted, err := inputValue(&ast.Type{NamedType: inputType, NonNull: true}, value)
	if err != nil {
		return err
	}
	b, err := json.Marshal(converted)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return &models.ValidationError{Field: snakeCase(inputType), Message: err.Error()}
	}
	return nil
}

func inputValue(t *ast.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if t.Elem != nil {
		items, ok := v.([]interface{})
		if !ok {
			items = []interface{}{v}
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			converted, err := inputValue(t.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}

	switch t.NamedType {
	case "Decimal":
		return UnmarshalDecimal(v)
	case "Int":
		return intValue(v)
	case "Time":
		return timeValue(v)
	}
	def := parsedSchema.Types[t.NamedType]
	if def == nil || def.Kind != ast.InputObject {
		return v, nil
	}
	fields, ok := v.(map[string]interface{})
	if !ok {
		return nil, &models.ValidationError{Field: snakeCase(t.NamedType), Message: "expected an object"}
	}
	out := make(map[string]interface{}, len(fields))
	for _, f := range def.Fields {
		raw, present := fields[f.Name]
		if !present {
			continue
		}
		converted, err := inputValue(f.Type, raw)
		if err != nil {
			return nil, &models.ValidationError{Field: snakeCase(f.Name), Message: err.Error()}
		}
		out[snakeCase(f.Name)] = converted
	}
	return out, nil
}

// timeValue accepts RFC 3339 timestamps and plain dates.
func timeValue(v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a time string, got %v", v)
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", s)
}
