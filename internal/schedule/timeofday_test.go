package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"9:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"12:60", 0, true},
		{"12", 0, true},
		{"ab:cd", 0, true},
		{"12:5", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDay_String(t *testing.T) {
	assert.Equal(t, "09:05", TimeOfDay(545).String())
	assert.Equal(t, "24:00", TimeOfDay(MinutesPerDay).String())
}

func TestInterval_Bounds(t *testing.T) {
	iv := MustInterval("09:00", "17:00")

	assert.True(t, iv.Contains(540))
	assert.False(t, iv.Contains(1020))
	assert.True(t, iv.ContainsClosed(1020))
	assert.True(t, iv.Covers(540, 1020))
	assert.False(t, iv.Covers(539, 600))
	assert.Equal(t, 480, iv.Minutes())

	_, err := NewInterval("17:00", "09:00")
	assert.Error(t, err)
	_, err = NewInterval("10:00", "10:00")
	assert.Error(t, err)
}

func TestInterval_JSON(t *testing.T) {
	data, err := json.Marshal(MustInterval("08:30", "12:00"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"08:30","end":"12:00"}`, string(data))

	var iv Interval
	require.NoError(t, json.Unmarshal([]byte(`{"start":"10:00","end":"11:15"}`), &iv))
	assert.Equal(t, MustInterval("10:00", "11:15"), iv)

	assert.Error(t, json.Unmarshal([]byte(`{"start":"11:00","end":"10:00"}`), &iv))
}

func TestSpan_Dates(t *testing.T) {
	span := Span{
		Start: time.Date(2026, 1, 30, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
	}
	dates := span.Dates()
	require.Len(t, dates, 4)
	assert.Equal(t, "2026-01-30", dates[0].String())
	assert.Equal(t, "2026-01-31", dates[1].String())
	assert.Equal(t, "2026-02-01", dates[2].String())
	assert.Equal(t, "2026-02-02", dates[3].String())
	assert.True(t, span.MultiDay())

	sameDay := Span{
		Start: time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
	}
	assert.Len(t, sameDay.Dates(), 1)
	assert.False(t, sameDay.MultiDay())
	assert.Equal(t, 60, sameDay.Minutes())
}

func TestSpan_OverlapsAndExpand(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 1, 15, h, m, 0, 0, time.UTC) }
	existing := Span{Start: at(10, 0), End: at(11, 0)}

	assert.True(t, existing.Overlaps(Span{Start: at(10, 30), End: at(11, 30)}))
	assert.False(t, existing.Overlaps(Span{Start: at(11, 0), End: at(12, 0)}))
	assert.False(t, existing.Overlaps(Span{Start: at(9, 0), End: at(10, 0)}))

	expanded := existing.Expand(15 * time.Minute)
	assert.Equal(t, at(9, 45), expanded.Start)
	assert.Equal(t, at(11, 15), expanded.End)
	assert.True(t, expanded.Overlaps(Span{Start: at(11, 0), End: at(12, 0)}))

	_, err := NewSpan(at(11, 0), at(10, 0))
	assert.Error(t, err)
}

func TestDate_TextRoundTrip(t *testing.T) {
	d := MustDate("2026-12-25")
	assert.Equal(t, time.Friday, d.Weekday())
	assert.Equal(t, "2027-01-01", d.AddDays(7).String())

	_, err := ParseDate("2026-13-01")
	assert.Error(t, err)
}
