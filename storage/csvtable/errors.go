package csvtable

import "errors"

var (
	// ErrMissingColumn indicates the header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")

	// ErrMalformedEmbeddings indicates an embeddings cell could not be parsed.
	ErrMalformedEmbeddings = errors.New("malformed embeddings")
)
