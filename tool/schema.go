//
// Copyright (C) 2026 Flowgent Authors. All rights reserved.
//
// flowgent is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"encoding/json"
	"fmt"
)

// Validate checks raw JSON arguments against the schema and returns the list
// of violations found. An empty slice means the arguments are valid. The check
// covers JSON well-formedness, required keys, declared property types, enum
// membership and array minItems; unknown keys are rejected only when
// AdditionalProperties is explicitly false.
func (s *Schema) Validate(jsonArgs []byte) []string {
	if s == nil {
		return nil
	}
	var value any
	if len(jsonArgs) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(jsonArgs, &value); err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}
	return s.validateValue("", value)
}

func (s *Schema) validateValue(path string, value any) []string {
	var issues []string
	at := func(field string) string {
		if path == "" {
			return field
		}
		return path + "." + field
	}

	switch s.Type {
	case "object", "":
		obj, ok := value.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object, got %T", orRoot(path), value)}
		}
		for _, req := range s.Required {
			if _, present := obj[req]; !present {
				issues = append(issues, fmt.Sprintf("%s: missing required property %q", orRoot(path), req))
			}
		}
		for key, val := range obj {
			prop, declared := s.Properties[key]
			if !declared {
				if forbid, ok := s.AdditionalProperties.(bool); ok && !forbid {
					issues = append(issues, fmt.Sprintf("%s: unknown property %q", orRoot(path), key))
				}
				continue
			}
			issues = append(issues, prop.validateValue(at(key), val)...)
		}
	case "string":
		str, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string, got %T", orRoot(path), value)}
		}
		if len(s.Enum) > 0 {
			found := false
			for _, allowed := range s.Enum {
				if str == allowed {
					found = true
					break
				}
			}
			if !found {
				issues = append(issues, fmt.Sprintf("%s: value %q not in enum %v", orRoot(path), str, s.Enum))
			}
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return []string{fmt.Sprintf("%s: expected %s, got %T", orRoot(path), s.Type, value)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{fmt.Sprintf("%s: expected boolean, got %T", orRoot(path), value)}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected array, got %T", orRoot(path), value)}
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			issues = append(issues, fmt.Sprintf("%s: expected at least %d items, got %d", orRoot(path), *s.MinItems, len(arr)))
		}
		if s.Items != nil {
			for i, item := range arr {
				issues = append(issues, s.Items.validateValue(fmt.Sprintf("%s[%d]", orRoot(path), i), item)...)
			}
		}
	}
	return issues
}

func orRoot(path string) string {
	if path == "" {
		return "arguments"
	}
	return path
}
