package schema

import (
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress"
)

const (
	IDColumn        = "id"
	PlainTextColumn = "plain_text"
	HTMLColumn      = "html"

	FileExtension = ".parquet"
)

// Document is a single opinion read from the source corpus.
type Document struct {
	ID string
	// PlainText is nil when the source field was missing.
	PlainText *string
	// HTML is nil when the source field was missing.
	HTML *string
}

type DocumentSchema struct {
	schema *parquet.Schema

	idPos    int
	plainPos int
	htmlPos  int
}

func MakeDocumentSchema(codec compress.Codec) *DocumentSchema {
	schema := parquet.NewSchema("opinion", parquet.Group{
		IDColumn:        newIDColumn(codec),
		PlainTextColumn: newTextColumn(codec),
		HTMLColumn:      newTextColumn(codec),
	})

	s, err := DocumentSchemaOf(schema)
	if err != nil {
		// The group above always carries all three columns.
		panic(err)
	}
	return s
}

// DocumentSchemaOf binds column positions from an existing schema, e.g. one read from a file footer.
func DocumentSchemaOf(schema *parquet.Schema) (*DocumentSchema, error) {
	s := &DocumentSchema{schema: schema}
	for _, c := range []struct {
		name string
		pos  *int
	}{
		{IDColumn, &s.idPos},
		{PlainTextColumn, &s.plainPos},
		{HTMLColumn, &s.htmlPos},
	} {
		leaf, ok := schema.Lookup(c.name)
		if !ok {
			return nil, errors.Errorf("column %q not found in schema %s", c.name, schema.Name())
		}
		*c.pos = leaf.ColumnIndex
	}
	return s, nil
}

func (s *DocumentSchema) ParquetSchema() *parquet.Schema {
	return s.schema
}

func (s *DocumentSchema) MakeRow(doc Document) parquet.Row {
	row := make(parquet.Row, 3)
	row[s.idPos] = parquet.ByteArrayValue([]byte(doc.ID)).Level(0, 0, s.idPos)
	row[s.plainPos] = optionalValue(doc.PlainText, s.plainPos)
	row[s.htmlPos] = optionalValue(doc.HTML, s.htmlPos)
	return row
}

func (s *DocumentSchema) DocumentFromRow(row parquet.Row) Document {
	var doc Document
	for _, v := range row {
		switch v.Column() {
		case s.idPos:
			doc.ID = string(v.ByteArray())
		case s.plainPos:
			doc.PlainText = optionalString(v)
		case s.htmlPos:
			doc.HTML = optionalString(v)
		}
	}
	return doc
}

func optionalValue(s *string, columnIndex int) parquet.Value {
	if s == nil {
		return parquet.Value{}.Level(0, 0, columnIndex)
	}
	return parquet.ByteArrayValue([]byte(*s)).Level(0, 1, columnIndex)
}

func optionalString(v parquet.Value) *string {
	if v.IsNull() {
		return nil
	}
	s := string(v.ByteArray())
	return &s
}
