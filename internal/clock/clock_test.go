package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	testCases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:05", want: 545},
		{in: "9:05", want: 545},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", got)

	_, err = ParseDate("09/03/2026")
	assert.Error(t, err)
	_, err = ParseDate("2026-02-30")
	assert.Error(t, err)
}

func TestScheduledInstant(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	at, err := ScheduledInstant("2026-03-09", "10:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 10, 30, 0, 0, loc), at)
	assert.Equal(t, time.Date(2026, 3, 9, 5, 0, 0, 0, time.UTC), at.UTC())
}

func TestDayOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC is already the next calendar day in IST.
	instant := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-10", DayOf(instant, loc))
	assert.Equal(t, "2026-03-09", DayOf(instant, time.UTC))
}

func TestOverdue(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, loc)
	grace := 10 * time.Minute

	testCases := []struct {
		name string
		date string
		at   string
		want bool
	}{
		{name: "past day", date: "2026-03-08", at: "23:55", want: true},
		{name: "earlier today beyond grace", date: "2026-03-09", at: "09:49", want: true},
		{name: "exactly at grace boundary", date: "2026-03-09", at: "09:50", want: false},
		{name: "inside grace", date: "2026-03-09", at: "09:55", want: false},
		{name: "later today", date: "2026-03-09", at: "11:00", want: false},
		{name: "future day", date: "2026-03-10", at: "00:00", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Overdue(tc.date, tc.at, grace, now, loc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFuncClock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Func(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
	assert.WithinDuration(t, time.Now(), System().Now(), time.Second)
}
