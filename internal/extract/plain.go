package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// plainText returns content as a string. Invalid UTF-8 sequences become U+FFFD.
func plainText(_ string, content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), "\ufffd"), nil
}

// csvText renders each record as one line of "header: value" pairs so a chunk
// keeps the column names next to the values.
func csvText(_ string, content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse CSV: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}
	header := records[0]
	var b strings.Builder
	for _, rec := range records[1:] {
		for i, v := range rec {
			if i > 0 {
				b.WriteString("; ")
			}
			if i < len(header) && header[i] != "" {
				b.WriteString(header[i])
				b.WriteString(": ")
			}
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}
	if len(records) == 1 {
		return strings.Join(header, "; "), nil
	}
	return b.String(), nil
}
