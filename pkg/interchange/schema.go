package interchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/linem-davton/graphdraw/pkg/model"
)

const schemaURL = "https://graphdraw.dev/schema/combined-model.json"

var (
	bundledOnce sync.Once
	bundledDoc  []byte
	bundledErr  error

	validatorOnce sync.Once
	bundled       *Validator
	bundledVErr   error
)

// Schema returns the JSON Schema of a combined model document, generated
// from the model types.
func Schema() ([]byte, error) {
	bundledOnce.Do(func() {
		r := &invopop.Reflector{
			Anonymous:      true,
			DoNotReference: true,
			ExpandedStruct: true,
		}
		s := r.Reflect(&model.CombinedModel{})
		s.Title = "graphdraw combined model"
		s.Description = "Application and platform models exchanged with the scheduler"
		bundledDoc, bundledErr = json.MarshalIndent(s, "", "  ")
	})
	return bundledDoc, bundledErr
}

// Validator checks documents against a compiled JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema document doc.
func NewValidator(doc []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// BundledValidator returns a validator for the generated Schema.
func BundledValidator() (*Validator, error) {
	validatorOnce.Do(func() {
		doc, err := Schema()
		if err != nil {
			bundledVErr = err
			return
		}
		bundled, bundledVErr = NewValidator(doc)
	})
	return bundled, bundledVErr
}

// LoadValidator compiles the schema file at path, or returns the bundled
// validator when path is empty.
func LoadValidator(path string) (*Validator, error) {
	if path == "" {
		return BundledValidator()
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	v, err := NewValidator(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Validate checks a decoded JSON value. Violations are reported as a
// *model.SchemaError listing every failing location.
func (v *Validator) Validate(doc any) error {
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &model.SchemaError{Errors: []string{err.Error()}, Err: err}
	}
	var msgs []string
	flatten(ve, &msgs)
	return &model.SchemaError{Errors: msgs}
}

func flatten(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc+": "+ve.Message)
		return
	}
	for _, c := range ve.Causes {
		flatten(c, out)
	}
}
