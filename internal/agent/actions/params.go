package actions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

// paramSpec is the binding contract derived from an action's argument struct.
type paramSpec struct {
	params []model.ActionParameter
	byName map[string]model.ActionParameter
	// open specs (map arguments) accept any parameter name.
	open bool
}

// deriveParams inspects the exported fields of t. A field is required unless
// it is a pointer or its json tag carries omitempty. Untagged embedded structs
// are flattened the way the json decoder binds them: a shallower field hides a
// deeper one of the same name and same-depth duplicates cancel out.
func deriveParams(t reflect.Type) paramSpec {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	spec := paramSpec{byName: map[string]model.ActionParameter{}}
	if t.Kind() == reflect.Map {
		spec.open = true
		return spec
	}
	if t.Kind() != reflect.Struct {
		return spec
	}

	var fields []derivedParam
	collectParams(t, 0, false, map[reflect.Type]bool{}, &fields)

	shallowest := map[string]int{}
	count := map[string]int{}
	for _, f := range fields {
		d, seen := shallowest[f.Name]
		switch {
		case !seen || f.depth < d:
			shallowest[f.Name] = f.depth
			count[f.Name] = 1
		case f.depth == d:
			count[f.Name]++
		}
	}
	for _, f := range fields {
		if f.depth != shallowest[f.Name] || count[f.Name] != 1 {
			continue
		}
		spec.params = append(spec.params, f.ActionParameter)
		spec.byName[f.Name] = f.ActionParameter
	}
	return spec
}

type derivedParam struct {
	model.ActionParameter
	depth int
}

// collectParams appends the parameters of t in field order. Fields reached
// through an embedded pointer are optional since the pointer may stay nil.
func collectParams(t reflect.Type, depth int, optional bool, visiting map[reflect.Type]bool, out *[]derivedParam) {
	if visiting[t] {
		return
	}
	visiting[t] = true
	defer delete(visiting, t)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		tagName := strings.Split(jsonTag, ",")[0]

		if field.Anonymous {
			ft := field.Type
			isPtr := ft.Kind() == reflect.Ptr
			if isPtr {
				ft = ft.Elem()
			}
			if !field.IsExported() && (isPtr || ft.Kind() != reflect.Struct) {
				continue
			}
			if tagName == "" && ft.Kind() == reflect.Struct {
				collectParams(ft, depth+1, optional || isPtr, visiting, out)
				continue
			}
		} else if !field.IsExported() {
			continue
		}

		name := field.Name
		if tagName != "" {
			name = tagName
		}
		*out = append(*out, derivedParam{
			ActionParameter: model.ActionParameter{
				Name:     name,
				Type:     jsonType(field.Type),
				Required: !optional && !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr,
			},
			depth: depth,
		})
	}
}

// validate binds args against the derived parameters: every required parameter must be
// present, no unknown parameter may appear and every value must match the
// declared type. The first failure is returned.
func (s paramSpec) validate(args map[string]any) error {
	for _, p := range s.params {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return errx.Field(errx.ErrActionValidation, p.Name, "required parameter is missing")
		}
	}

	for _, name := range sortedKeys(args) {
		p, ok := s.byName[name]
		if !ok {
			if s.open {
				continue
			}
			return errx.Field(errx.ErrActionValidation, name, "unexpected parameter")
		}
		value := args[name]
		if value == nil {
			if p.Required {
				return errx.Field(errx.ErrActionValidation, name, "required parameter is null")
			}
			continue
		}
		if !isValidType(value, p.Type) {
			return errx.Field(errx.ErrActionValidation, name, fmt.Sprintf("expected %s, got %T", p.Type, value))
		}
	}
	return nil
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return "any"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

func isValidType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		if _, ok := value.([]any); ok {
			return true
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		if _, ok := value.(map[string]any); ok {
			return true
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Map || k == reflect.Struct
	default:
		return true
	}
}
