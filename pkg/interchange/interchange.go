// Package interchange reads and writes combined model documents: the
// exported JSON file, schema checks on import, and file transfer through a
// blob store.
package interchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/linem-davton/graphdraw/pkg/blob"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// ExportFileName is the name of the downloaded document.
const ExportFileName = "updated_data.json"

const maxDocumentSize = 16 << 20

// ImportOptions configures Import. A nil Validator skips schema checks.
type ImportOptions struct {
	Validator *Validator
}

// Export renders m as 2-space indented JSON.
func Export(m model.CombinedModel) ([]byte, error) {
	data, err := json.MarshalIndent(m.Clone(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return data, nil
}

// Import parses and checks a document. Malformed JSON wraps
// model.ErrParse; schema, shape and referential failures are reported as
// *model.SchemaError.
func Import(data []byte, opts ImportOptions) (model.CombinedModel, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return model.CombinedModel{}, fmt.Errorf("%w: Upload Valid JSON: %v", model.ErrParse, err)
	}
	if dec.More() {
		return model.CombinedModel{}, fmt.Errorf("%w: Upload Valid JSON: trailing data after document", model.ErrParse)
	}

	if opts.Validator != nil {
		if err := opts.Validator.Validate(doc); err != nil {
			return model.CombinedModel{}, err
		}
	}

	var m model.CombinedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return model.CombinedModel{}, &model.SchemaError{Errors: []string{err.Error()}, Err: err}
	}
	m = m.Clone()

	if err := model.ValidateCombined(m); err != nil {
		return model.CombinedModel{}, &model.SchemaError{Errors: splitJoined(err), Err: err}
	}
	return m, nil
}

func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// Download writes the exported document to store under ExportFileName.
func Download(ctx context.Context, store blob.Store, m model.CombinedModel) (string, error) {
	data, err := Export(m)
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, ExportFileName, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", ExportFileName, err)
	}
	return ExportFileName, nil
}

// Upload reads key from store and imports it.
func Upload(ctx context.Context, store blob.Store, key string, opts ImportOptions) (model.CombinedModel, error) {
	r, err := store.Get(ctx, key)
	if err != nil {
		return model.CombinedModel{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return model.CombinedModel{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) > maxDocumentSize {
		return model.CombinedModel{}, fmt.Errorf("%w: %s exceeds %d bytes", model.ErrParse, key, maxDocumentSize)
	}
	return Import(data, opts)
}
