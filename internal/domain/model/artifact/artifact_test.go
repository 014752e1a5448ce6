package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain name", "merged.xml.gz", false},
		{"archived name", "merged.xml.gz.20250101_120000", false},
		{"trims whitespace", "  merged.xml.gz  ", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"parent segment", "../etc/passwd", true},
		{"embedded parent", "a/../b", true},
		{"double dot", "foo..bar", true},
		{"absolute path", "/etc/passwd", true},
		{"windows absolute", "\\windows\\system32", true},
		{"subdirectory", "sub/merged.xml.gz", true},
		{"dot", ".", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, got)
			}
		})
	}
}

func TestArchivedName(t *testing.T) {
	at := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	assert.Equal(t, "merged.xml.gz.20250314_150926", ArchivedName("merged.xml.gz", at))
}

func TestArchivedName_SortsByCreationOrder(t *testing.T) {
	earlier := ArchivedName("merged.xml.gz", time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	later := ArchivedName("merged.xml.gz", time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
}

func TestNewCurrent(t *testing.T) {
	rec, err := NewCurrent("merged.xml.gz", 2, 50, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "merged.xml.gz", rec.Filename())
	assert.True(t, rec.IsCurrent())
	assert.Equal(t, 2, rec.Channels())
	assert.Equal(t, 50, rec.Programs())
	assert.Equal(t, int64(100), rec.SizeBytes())
	assert.False(t, rec.CreatedAt().IsZero())
}

func TestNewCurrent_RejectsBadInput(t *testing.T) {
	_, err := NewCurrent("../merged.xml.gz", 2, 50, 3, 100)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewCurrent("merged.xml.gz", 2, 50, 0, 100)
	assert.Error(t, err)
}

func TestDemote(t *testing.T) {
	rec, err := NewCurrent("merged.xml.gz", 2, 50, 3, 100)
	require.NoError(t, err)

	err = rec.Demote("merged.xml.gz.20250314_150926")
	require.NoError(t, err)
	assert.False(t, rec.IsCurrent())
	assert.Equal(t, "merged.xml.gz.20250314_150926", rec.Filename())

	// A second demotion is a programming error
	err = rec.Demote("merged.xml.gz.20250314_160000")
	assert.Error(t, err)
}

func TestDaysLeft(t *testing.T) {
	created := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	rec := Reconstruct("merged.xml.gz.20250310_143000", created, 2, 50, 3, 100, false)

	// Same day: 3 days of data, day 1 consumed
	assert.Equal(t, 2, rec.DaysLeft(created))
	assert.False(t, rec.IsExpired(created))

	// Two days later: last covered day
	twoDays := created.AddDate(0, 0, 2)
	assert.Equal(t, 0, rec.DaysLeft(twoDays))
	assert.True(t, rec.IsExpired(twoDays))

	// Four days later: well past the window, clamped at zero
	fourDays := created.AddDate(0, 0, 4)
	assert.Equal(t, 0, rec.DaysLeft(fourDays))
	assert.True(t, rec.IsExpired(fourDays))
}

func TestDaysLeft_IgnoresTimeOfDay(t *testing.T) {
	created := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	rec := Reconstruct("merged.xml.gz", created, 2, 50, 7, 100, true)

	// One minute later but a new calendar day
	nextDay := time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 5, rec.DaysLeft(nextDay))
}

func TestPartialPromoteError(t *testing.T) {
	inner := assert.AnError
	err := &PartialPromoteError{ArchivedAs: "merged.xml.gz.20250314_150926", Err: inner}
	assert.Contains(t, err.Error(), "merged.xml.gz.20250314_150926")
	assert.ErrorIs(t, err, inner)
}
