package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"libraryhub/pkg/domain"
)

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// servedRoutes lists every method+path the library server answers.
var servedRoutes = map[string][]string{
	"/":                         {"get"},
	"/healthz":                  {"get"},
	"/api/book/add-book":        {"post"},
	"/api/book/available-books": {"get"},
	"/api/book/{id}":            {"get"},
	"/api/user/addUsers":        {"post"},
	"/api/user/{id}":            {"get"},
	"/api/user/issued-book":     {"post"},
	"/api/user/return-book":     {"post"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) error {
	if err := checkRoutes(doc); err != nil {
		return err
	}
	envelope, err := getSchema(doc, "Envelope")
	if err != nil {
		return err
	}
	if err := validateEnvelope(envelope); err != nil {
		return err
	}
	for name, model := range map[string]any{"Book": domain.Book{}, "User": domain.User{}} {
		s, err := getSchema(doc, name)
		if err != nil {
			return err
		}
		if err := ensureMatchesModel(name, s, model); err != nil {
			return err
		}
	}
	return nil
}

func checkRoutes(doc openAPIDoc) error {
	for path, methods := range servedRoutes {
		ops, ok := doc.Paths[path]
		if !ok {
			return fmt.Errorf("path %q missing", path)
		}
		for _, method := range methods {
			if _, ok := ops[method]; !ok {
				return fmt.Errorf("path %q missing %s operation", path, strings.ToUpper(method))
			}
		}
	}
	for path := range doc.Paths {
		if _, ok := servedRoutes[path]; !ok {
			return fmt.Errorf("path %q documented but not served", path)
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateEnvelope(s schema) error {
	if s.Type != "object" {
		return errors.New("Envelope must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"success", "message"} {
		if !required[field] {
			return fmt.Errorf("Envelope.required must include %q", field)
		}
	}
	want := map[string]string{
		"success": "boolean",
		"message": "string",
		"error":   "string",
		"length":  "integer",
	}
	for field, typ := range want {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != typ {
			return fmt.Errorf("Envelope.%s must be %s", field, typ)
		}
	}
	if _, ok := s.Properties["data"]; !ok {
		return errors.New("Envelope.data missing")
	}
	return nil
}

// ensureMatchesModel compares schema properties with the JSON field names of model.
func ensureMatchesModel(name string, s schema, model any) error {
	fields := jsonFields(reflect.TypeOf(model))
	props := make([]string, 0, len(s.Properties))
	for prop := range s.Properties {
		props = append(props, prop)
	}
	sort.Strings(props)
	if strings.Join(fields, ",") != strings.Join(props, ",") {
		return fmt.Errorf("%s properties mismatch: model %v vs schema %v", name, fields, props)
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("%s.required names unknown property %q", name, req)
		}
	}
	return nil
}

func jsonFields(t reflect.Type) []string {
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func makeSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
