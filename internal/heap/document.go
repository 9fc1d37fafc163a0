package heap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/tuannm99/novarel/internal/record"
)

// Document is the persisted form of a table.
type Document struct {
	Schema    record.Schema `json:"schema"`
	Rows      []record.Row  `json:"rows"`
	NextRowID uint64        `json:"next_row_id"`
}

func (t *Table) Document() Document {
	rows := make([]record.Row, 0, t.rows.Len())
	t.rows.Ascend(func(e Entry) bool {
		rows = append(rows, e.Row)
		return true
	})
	return Document{
		Schema:    t.Schema,
		Rows:      rows,
		NextRowID: uint64(t.nextRowID),
	}
}

// Encode writes the table document as indented JSON.
func (t *Table) Encode(w io.Writer) error {
	data, err := json.MarshalIndent(t.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("heap: encode %s: %w", t.Name, err)
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a table document and rebuilds the table by replaying its rows in file order
// through the validated insert path. Any constraint or type violation fails the whole load.
func Decode(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("heap: decode: %w", err)
	}
	return FromDocument(doc)
}

func DecodeBytes(data []byte) (*Table, error) {
	return Decode(bytes.NewReader(data))
}

func FromDocument(doc Document) (*Table, error) {
	if err := doc.Schema.Validate(); err != nil {
		return nil, err
	}

	t := NewTable(doc.Schema)
	for i, raw := range doc.Rows {
		row, err := castRow(doc.Schema, raw)
		if err != nil {
			return nil, fmt.Errorf("heap: %s row %d: %w", doc.Schema.TableName, i, err)
		}
		if _, _, err := t.Insert(row); err != nil {
			return nil, fmt.Errorf("heap: %s row %d: %w", doc.Schema.TableName, i, err)
		}
	}
	if next := record.RowID(doc.NextRowID); next > t.nextRowID {
		t.nextRowID = next
	}
	return t, nil
}

// castRow turns decoded JSON numbers into their column representation.
// Other values are kept as decoded and checked by Insert.
func castRow(schema record.Schema, raw record.Row) (record.Row, error) {
	out := make(record.Row, len(raw))
	for k, v := range raw {
		n, isNum := v.(json.Number)
		if !isNum {
			out[k] = v
			continue
		}
		c := schema.Column(k)
		if c == nil || c.Type != record.TypeInt {
			return nil, fmt.Errorf("%w: unexpected number %s in column %s", record.ErrTypeMismatch, n, k)
		}
		cv, err := c.Cast(n)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}
