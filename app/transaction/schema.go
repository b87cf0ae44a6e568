package transaction

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lysyi3m/tradewire/app/teams"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	teamType = reflect.TypeOf(teams.ID(""))
	kindType = reflect.TypeOf(Kind(""))
)

// Describe renders the model-facing description of the transaction union.
// It is generated from the same struct and validation tags that Validate
// enforces, so adding a kind to the registry changes the prompt with it.
func Describe() string {
	var b strings.Builder
	b.WriteString("Each transaction is a JSON object whose \"type\" field selects one of the shapes below.\n")
	b.WriteString("Fields not listed for a shape are rejected. Omit optional fields you cannot confirm.\n")

	for _, k := range kinds {
		c := registry[k]()
		fmt.Fprintf(&b, "\ntype %q:\n", k)
		describeStruct(&b, reflect.TypeOf(c).Elem(), k, 1)
	}

	return b.String()
}

func describeStruct(b *strings.Builder, t reflect.Type, k Kind, depth int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			describeStruct(b, f.Type, k, depth)
			continue
		}
		if !f.IsExported() || f.Tag.Get("schema") == "-" {
			continue
		}

		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}

		outer, inner := splitDive(f.Tag.Get("validate"))
		ft := f.Type

		var attrs []string
		if ft == kindType {
			attrs = append(attrs, fmt.Sprintf("%q", k))
		} else {
			attrs = append(attrs, typeName(ft, inner))
		}
		attrs = append(attrs, requirement(ft, outer))
		attrs = append(attrs, constraints(ft, outer)...)

		line := fmt.Sprintf("%s- %s (%s)", indent(depth), name, strings.Join(attrs, ", "))
		if desc := f.Tag.Get("desc"); desc != "" {
			line += ": " + desc
		}
		b.WriteString(line + "\n")

		if elem := structElem(ft); elem != nil {
			describeStruct(b, elem, k, depth+1)
		}
	}
}

// splitDive separates slice-level rules from element rules.
func splitDive(tag string) (outer, inner []string) {
	if tag == "" {
		return nil, nil
	}
	parts := strings.Split(tag, ",")
	for i, p := range parts {
		if p == "dive" {
			return parts[:i], parts[i+1:]
		}
	}
	return parts, nil
}

func typeName(t reflect.Type, elemRules []string) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return "RFC 3339 timestamp"
	case t == teamType:
		return "team id"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	case reflect.Struct:
		return "object"
	case reflect.Slice:
		elem := typeName(t.Elem(), nil)
		if enum := oneOf(elemRules); enum != "" {
			elem += " " + enum
		}
		return "array of " + elem
	}
	return t.Kind().String()
}

func requirement(t reflect.Type, rules []string) string {
	for _, r := range rules {
		switch {
		case r == "required":
			return "required"
		case strings.HasPrefix(r, "required_if="):
			cond := strings.Fields(strings.TrimPrefix(r, "required_if="))
			if len(cond) == 2 {
				return fmt.Sprintf("required when %s is %q", jsonName(cond[0]), cond[1])
			}
		case strings.HasPrefix(r, "min="):
			return "required"
		case r == "omitempty":
			return "optional"
		}
	}
	if t.Kind() == reflect.Pointer {
		return "optional"
	}
	return "required"
}

func constraints(t reflect.Type, rules []string) []string {
	var out []string
	if enum := oneOf(rules); enum != "" {
		out = append(out, enum)
	}
	for _, r := range rules {
		key, val, ok := strings.Cut(r, "=")
		if !ok {
			if r == "unique" {
				out = append(out, "no repeats")
			}
			continue
		}
		switch key {
		case "min":
			out = append(out, "at least "+val+" items")
		case "max":
			if t.Kind() == reflect.String {
				out = append(out, "at most "+val+" characters")
			} else {
				out = append(out, "at most "+val+" items")
			}
		case "gte":
			out = append(out, ">= "+val)
		case "lte":
			out = append(out, "<= "+val)
		case "nefield":
			out = append(out, "must differ from "+jsonName(val))
		}
	}
	return out
}

func oneOf(rules []string) string {
	for _, r := range rules {
		if v, ok := strings.CutPrefix(r, "oneof="); ok {
			opts := strings.Fields(v)
			for i, o := range opts {
				opts[i] = fmt.Sprintf("%q", o)
			}
			return "one of " + strings.Join(opts, " | ")
		}
	}
	return ""
}

func structElem(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t != timeType {
		return t
	}
	return nil
}

// jsonName maps a Go field name used in a validation rule to its wire name.
func jsonName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
