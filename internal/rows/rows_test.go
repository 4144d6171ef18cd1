package rows

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/domain"
)

const sampleCSV = `date,description,amount,currency
2025-01-02,Grab Ride,-100,thb
2025-01-09,"Grab Ride, airport",-50.25,
2025-01-25,Salary,10000,THB
`

func TestDecodeCSV(t *testing.T) {
	txns, err := Decode(strings.NewReader(sampleCSV), FormatCSV)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	require.Equal(t, "Grab Ride", txns[0].Description)
	require.Equal(t, "THB", txns[0].Currency)
	require.True(t, txns[0].Amount.Equal(decimal.NewFromInt(-100)))
	require.Equal(t, "2025-01-02", txns[0].TxnDate.String())

	require.Equal(t, "Grab Ride, airport", txns[1].Description)
	require.Equal(t, DefaultCurrency, txns[1].Currency)
	require.Equal(t, "-50.25", txns[1].Amount.String())
	require.True(t, txns[2].IsInflow())
}

func TestDecodeCSVColumnOrderAndID(t *testing.T) {
	in := "Amount,ID,Description,Date\n-12.5,abc,Coffee,2025-02-01\n"
	txns, err := Decode(strings.NewReader(in), FormatCSV)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, "abc", txns[0].ID)
	require.Equal(t, "Coffee", txns[0].Description)
}

func TestDecodeCSVErrors(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantLine int
		wantErr  error
	}{
		{"missing column", "date,description\n2025-01-01,x\n", 1, nil},
		{"bad date", "date,description,amount\n2025-13-01,x,1\n", 2, domain.ErrValidation},
		{"bad amount", "date,description,amount\n2025-01-01,x,1\n2025-01-02,y,12abc\n", 3, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.in), FormatCSV)
			require.Error(t, err)
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			require.Equal(t, tt.wantLine, rowErr.Line)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	txns, err := Decode(strings.NewReader(""), FormatCSV)
	require.NoError(t, err)
	require.Empty(t, txns)
}

func TestDecodeJSONL(t *testing.T) {
	in := `{"date":"2025-01-02","description":"KFC","amount":"-99.00","currency":"THB"}

{"id":"x1","date":"2025-01-03","description":"Refund","amount":"99"}
`
	txns, err := Decode(strings.NewReader(in), FormatJSONL)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.True(t, txns[0].IsOutflow())
	require.Equal(t, "x1", txns[1].ID)

	_, err = Decode(strings.NewReader(`{"date":"bad","amount":"1"}`), FormatJSONL)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("gs://bucket/jan.CSV")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)

	f, err = DetectFormat("/tmp/jan.ndjson")
	require.NoError(t, err)
	require.Equal(t, FormatJSONL, f)

	_, err = DetectFormat("statement.pdf")
	require.Error(t, err)
}

func TestLoadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jan.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	txns, err := Load(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	_, err = Load(context.Background(), "gs://bucket/jan.csv", nil)
	require.Error(t, err)
}

func TestTransactions(t *testing.T) {
	txns, err := Transactions([]Row{{Date: "2025-01-01", Description: " Rent ", Amount: "-8000"}})
	require.NoError(t, err)
	require.Equal(t, "Rent", txns[0].Description)

	_, err = Transactions([]Row{{Date: "2025-01-01", Amount: "1"}, {Date: "", Amount: "1"}})
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	require.Equal(t, 2, rowErr.Line)
}
