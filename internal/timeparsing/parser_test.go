package timeparsing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "+6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{input: "-6h", want: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC)},
		{input: "-2d", want: time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)},
		{input: "-1w", want: time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)},
		{input: "-1m", want: time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)},
		{input: "1y", want: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{input: "-48h", want: time.Date(2025, 6, 13, 12, 0, 0, 0, time.UTC)},
		{input: "2 days", wantErr: true},
		{input: "-2x", wantErr: true},
		{input: "d", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsCompactDuration(tt.input))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		dayOnly bool
		wantErr bool
	}{
		{name: "compact", input: "-1d", want: time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)},
		{name: "date only", input: "2025-01-02", want: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{name: "date and time", input: "2025-01-02 08:30", want: time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)},
		{name: "rfc3339", input: "2025-01-02T08:30:00Z", want: time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)},
		{name: "days ago", input: "3 days ago", want: time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), dayOnly: true},
		{name: "yesterday", input: "yesterday", want: time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC), dayOnly: true},
		{name: "padded", input: "  -1d ", want: time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC)},
		{name: "garbage", input: "not a date at all", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.dayOnly {
				assert.Equal(t, tt.want.Format("2006-01-02"), got.Format("2006-01-02"))
				return
			}
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseSinceRejectsFuture(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	got, err := ParseSince("-2d", now)
	require.NoError(t, err)
	assert.True(t, got.Before(now))

	_, err = ParseSince("+2d", now)
	assert.ErrorContains(t, err, "in the future")
}
