// Package quizfile reads quiz definitions from JSON or YAML documents and
// validates them against the embedded quiz schema.
package quizfile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"learnpath-service/internal/domain"
)

//go:embed quiz.schema.json
var schemaJSON string

var schema = mustSchema()

// ErrInvalid wraps every schema or consistency failure.
var ErrInvalid = errors.New("invalid quiz document")

func mustSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("quiz schema: %v", err))
	}
	return s
}

// ParseFile reads a .json, .yaml or .yml quiz document.
func ParseFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(data, format)
}

// Parse validates and decodes a quiz document. format is "json" or "yaml".
func Parse(data []byte, format string) (domain.Quiz, error) {
	doc := data
	if format == "yaml" {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		doc = converted
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return domain.Quiz{}, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}

	var quiz domain.Quiz
	if err := json.Unmarshal(doc, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := check(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// check enforces what the schema cannot express and marks free-text
// questions with CorrectIndex -1.
func check(quiz *domain.Quiz) error {
	seen := make(map[string]bool, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if len(q.Options) == 0 {
			q.CorrectIndex = -1
		} else if q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("%w: question %d: correctIndex %d out of %d options", ErrInvalid, i+1, q.CorrectIndex, len(q.Options))
		}
		if q.ID == "" {
			continue
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalid, q.ID)
		}
		seen[q.ID] = true
	}
	if quiz.OpensAt != nil && quiz.ClosesAt != nil && quiz.ClosesAt.Before(*quiz.OpensAt) {
		return fmt.Errorf("%w: closesAt before opensAt", ErrInvalid)
	}
	return nil
}
