package gateway

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

// documentSchema проверяет JSON-документы против встроенной схемы.
type documentSchema struct {
	name   string
	schema *gojsonschema.Schema
}

func loadSchema(name string) (*documentSchema, error) {
	raw, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, fmt.Errorf("gateway: read schema %s: %w", name, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("gateway: compile schema %s: %w", name, err)
	}
	return &documentSchema{name: name, schema: schema}, nil
}

// Validate возвращает ошибку со списком нарушений, если документ не соответствует схеме.
func (s *documentSchema) Validate(doc []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate against %s: %w", s.name, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("document does not match %s: %s", s.name, strings.Join(problems, "; "))
}
