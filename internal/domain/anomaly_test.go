package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAnomalyResolve(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		from     AnomalyStatus
		decision AnomalyStatus
		wantErr  error
	}{
		{"open to confirmed", StatusOpen, StatusConfirmed, nil},
		{"open to dismissed", StatusOpen, StatusDismissed, nil},
		{"confirmed to dismissed", StatusConfirmed, StatusDismissed, ErrAlreadyResolved},
		{"dismissed to confirmed", StatusDismissed, StatusConfirmed, ErrAlreadyResolved},
		{"confirmed again", StatusConfirmed, StatusConfirmed, ErrAlreadyResolved},
		{"back to open", StatusOpen, StatusOpen, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Anomaly{ID: "a1", Status: tt.from}
			err := a.Resolve(tt.decision, at)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, tt.from, a.Status)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.decision, a.Status)
			require.NotNil(t, a.ReviewedAt)
			require.True(t, a.ReviewedAt.Equal(at))
		})
	}
}

func TestAnomalyResolveKeepsFirstReviewTime(t *testing.T) {
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Anomaly{ID: "a1", Status: StatusOpen}
	require.NoError(t, a.Resolve(StatusDismissed, first))

	err := a.Resolve(StatusConfirmed, first.Add(time.Hour))
	var resolved *AlreadyResolvedError
	require.True(t, errors.As(err, &resolved))
	require.Equal(t, StatusDismissed, resolved.Status)
	require.True(t, a.ReviewedAt.Equal(first))
}

func TestParseDecision(t *testing.T) {
	got, err := ParseDecision(" Confirmed ")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got)

	_, err = ParseDecision("open")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSeverityText(t *testing.T) {
	b, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityHigh})
	require.NoError(t, err)
	require.JSONEq(t, `{"s":"HIGH"}`, string(b))

	var out struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"low"}`), &out))
	require.Equal(t, SeverityLow, out.S)
	require.True(t, SeverityHigh > SeverityMedium && SeverityMedium > SeverityLow)
}
