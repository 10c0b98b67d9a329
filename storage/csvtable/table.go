package csvtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/poiesic/gpthistory/core"
)

// Column names, in the order WriteTable emits them.
const (
	ColumnChatID     = "chat_id"
	ColumnText       = "text"
	ColumnEmbeddings = "embeddings"
)

// ReadTable parses a CSV index table. Columns are located by header name.
func ReadTable(r io.Reader) (core.IndexTable, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.IndexTable{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := map[string]int{ColumnChatID: -1, ColumnText: -1, ColumnEmbeddings: -1}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	for _, name := range []string{ColumnChatID, ColumnText, ColumnEmbeddings} {
		if cols[name] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	table := core.IndexTable{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		embeddings, err := ParseEmbeddings(record[cols[ColumnEmbeddings]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		table = append(table, core.IndexRow{
			ChatID:     record[cols[ColumnChatID]],
			Text:       record[cols[ColumnText]],
			Embeddings: embeddings,
		})
	}

	return table, nil
}

// WriteTable writes table as CSV with a chat_id,text,embeddings header.
func WriteTable(w io.Writer, table core.IndexTable) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{ColumnChatID, ColumnText, ColumnEmbeddings}); err != nil {
		return err
	}

	record := make([]string, 3)
	for _, row := range table {
		record[0] = row.ChatID
		record[1] = row.Text
		record[2] = FormatEmbeddings(row.Embeddings)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ParseEmbeddings parses a cell such as "[0.1, -0.2, 3e-05]".
func ParseEmbeddings(cell string) (core.Vector, error) {
	s := strings.TrimSpace(cell)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: expected bracketed list", ErrMalformedEmbeddings)
	}
	s = strings.TrimSpace(s[1 : len(s)-1])
	if s == "" {
		return core.Vector{}, nil
	}

	parts := strings.Split(s, ",")
	v := make(core.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrMalformedEmbeddings, i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// FormatEmbeddings renders v in the bracketed list form ParseEmbeddings reads.
func FormatEmbeddings(v core.Vector) string {
	var b strings.Builder
	b.Grow(len(v) * 12)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// LoadFile reads a CSV index table from path.
func LoadFile(path string) (core.IndexTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// SaveFile writes table to path, replacing any existing file only once the
// new contents are fully written.
func SaveFile(path string, table core.IndexTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteTable(tmp, table); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
