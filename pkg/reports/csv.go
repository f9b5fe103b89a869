package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// table collects CSV rows under a header.
type table struct {
	buf    *bytes.Buffer
	writer *csv.Writer
}

func newTable(headers ...string) (*table, error) {
	buf := &bytes.Buffer{}
	t := &table{buf: buf, writer: csv.NewWriter(buf)}
	if err := t.writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return t, nil
}

func (t *table) row(ctx context.Context, fields ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.writer.Write(fields); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (t *table) done() (io.Reader, error) {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return t.buf, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
