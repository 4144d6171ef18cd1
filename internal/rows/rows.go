// Package rows decodes normalized statement rows (date, description, signed
// amount, currency) produced by upstream extraction.
package rows

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/gcs"
)

// Format is the encoding of a rows file.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// DefaultCurrency is used for rows without a currency.
const DefaultCurrency = "THB"

// Row is the wire shape of one normalized row.
type Row struct {
	ID          string `json:"id,omitempty"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
}

// RowError locates a malformed row. Line is 1-based and counts the CSV header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// DetectFormat picks a format from a file name.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported rows file %q: want .csv or .jsonl", name)
}

// Load reads source, a local path or gs:// URI, and decodes its rows. store
// may be nil when source is local.
func Load(ctx context.Context, source string, store gcs.ObjectStore) ([]domain.Transaction, error) {
	format, err := DetectFormat(source)
	if err != nil {
		return nil, err
	}

	var data []byte
	if gcs.IsURI(source) {
		if store == nil {
			return nil, fmt.Errorf("Load: %s needs object storage", source)
		}
		data, err = store.ReadObject(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	txns, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("Load %s: %w", source, err)
	}
	return txns, nil
}

// Decode reads all rows from r.
func Decode(r io.Reader, format Format) ([]domain.Transaction, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(r)
	case FormatJSONL:
		return decodeJSONL(r)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Transactions converts wire rows, e.g. from an API request body.
func Transactions(in []Row) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(in))
	for i, row := range in {
		t, err := row.Transaction()
		if err != nil {
			return nil, &RowError{Line: i + 1, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

// Transaction validates the row and converts it.
func (r Row) Transaction() (domain.Transaction, error) {
	date, err := civil.ParseDate(strings.TrimSpace(r.Date))
	if err != nil {
		return domain.Transaction{}, &domain.ValidationError{Field: "date", Reason: err.Error()}
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return domain.Transaction{}, &domain.ValidationError{Field: "amount", Reason: err.Error()}
	}
	currency := strings.ToUpper(strings.TrimSpace(r.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return domain.Transaction{
		ID:          strings.TrimSpace(r.ID),
		TxnDate:     date,
		Description: strings.TrimSpace(r.Description),
		Amount:      amount,
		Currency:    currency,
	}, nil
}

var requiredColumns = []string{"date", "description", "amount"}

func decodeCSV(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &RowError{Line: 1, Err: err}
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &RowError{Line: 1, Err: fmt.Errorf("missing column %q", c)}
		}
	}
	field := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var out []domain.Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		t, err := Row{
			ID:          field(rec, "id"),
			Date:        field(rec, "date"),
			Description: field(rec, "description"),
			Amount:      field(rec, "amount"),
			Currency:    field(rec, "currency"),
		}.Transaction()
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeJSONL(r io.Reader) ([]domain.Transaction, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []domain.Transaction
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		t, err := row.Transaction()
		if err != nil {
			return nil, &RowError{Line: line, Err: err}
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
