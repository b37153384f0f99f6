package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcore/internal/schedule"
)

const resourcesYAML = `
defaults:
  availability:
    monday: [{start: "09:00", end: "17:00"}]
    tuesday: [{start: "09:00", end: "17:00"}]
    saturday: [{start: "10:00", end: "14:00"}]
  days_off: [6, 7]

holidays:
  - date: "2026-01-06"
    name: Orthodox Christmas Eve
  - date: "2026-01-13"
    name: Old New Year

policies:
  - business_id: 1
    buffer_time_mins: 15
    min_duration_mins: 30
    max_daily_bookings: 8

resources:
  - business_id: 1
    name: Dr. Ivanova
    kind: staff
    is_active: true
  - business_id: 1
    name: Projector
    kind: rental_product
    capacity: 5
    is_active: true
    availability:
      monday: [{start: "08:00", end: "18:00"}]
      tuesday: [{start: "08:00", end: "18:00"}]
      exceptions:
        2026-01-13: [{start: "08:00", end: "12:00"}]
  - business_id: 2
    name: Dr. Ivanova
    kind: staff
    capacity: 3
    is_active: false
`

func TestParseResourcesConfig(t *testing.T) {
	cfg, err := ParseResourcesConfig([]byte(resourcesYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 3)

	staff := cfg.GetResourceByName(1, "Dr. Ivanova")
	require.NotNil(t, staff)
	assert.Equal(t, 1, staff.Capacity)
	assert.NotNil(t, staff.Availability, "defaults applied")

	other := cfg.GetResourceByName(2, "Dr. Ivanova")
	require.NotNil(t, other)
	assert.Equal(t, 1, other.Capacity, "staff capacity is always one")

	assert.Nil(t, cfg.GetResourceByName(3, "Dr. Ivanova"))

	require.Len(t, cfg.Policies, 1)
	p := cfg.Policies[0].BookingPolicy()
	assert.Equal(t, 15, p.BufferTimeMins)
	require.NotNil(t, p.MinDurationMins)
	assert.Equal(t, 30, *p.MinDurationMins)

	holiday, name := cfg.IsHoliday(time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC))
	assert.True(t, holiday)
	assert.Equal(t, "Orthodox Christmas Eve", name)

	assert.Equal(t, "ResourcesConfig: 3 resources (2 active), 1 policies, 2 holidays", cfg.String())
}

func TestResourcesConfig_Calendar(t *testing.T) {
	cfg, err := ParseResourcesConfig([]byte(resourcesYAML))
	require.NoError(t, err)

	staffCal := cfg.Calendar(cfg.GetResourceByName(1, "Dr. Ivanova"))
	assert.Len(t, staffCal.IntervalsOn(schedule.MustDate("2026-01-05")), 1)
	assert.Empty(t, staffCal.IntervalsOn(schedule.MustDate("2026-01-10")), "saturday is a day off")
	assert.True(t, staffCal.HasException(schedule.MustDate("2026-01-06")))
	assert.Empty(t, staffCal.IntervalsOn(schedule.MustDate("2026-01-06")), "holiday closes the day")

	productCal := cfg.Calendar(cfg.GetResourceByName(1, "Projector"))
	assert.Equal(t,
		[]schedule.Interval{schedule.MustInterval("08:00", "12:00")},
		productCal.IntervalsOn(schedule.MustDate("2026-01-13")),
		"explicit exception wins over the holiday")
}

func TestResourcesConfig_CalendarWithoutAvailability(t *testing.T) {
	cfg := &ResourcesConfig{Holidays: []HolidayConfig{{Date: "2026-01-06"}}}
	cal := cfg.Calendar(&ResourceConfig{Name: "x", Kind: "staff"})
	assert.False(t, cal.Configured())
}

func TestResourcesConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty",
			yaml:    `resources: []`,
			wantErr: "no resources defined",
		},
		{
			name:    "missing business",
			yaml:    `resources: [{name: a, kind: staff}]`,
			wantErr: "resource[0]: business_id must be positive, got 0",
		},
		{
			name:    "missing name",
			yaml:    `resources: [{business_id: 1, kind: staff}]`,
			wantErr: "resource[0]: name is required",
		},
		{
			name:    "duplicate name",
			yaml:    `resources: [{business_id: 1, name: a, kind: staff}, {business_id: 1, name: a, kind: staff}]`,
			wantErr: "resource[1]: duplicate name 'a' in business 1",
		},
		{
			name:    "bad kind",
			yaml:    `resources: [{business_id: 1, name: a, kind: room}]`,
			wantErr: `resource[0]: kind must be "staff" or "rental_product", got "room"`,
		},
		{
			name:    "negative capacity",
			yaml:    `resources: [{business_id: 1, name: a, kind: rental_product, capacity: -1}]`,
			wantErr: "resource[0]: capacity cannot be negative",
		},
		{
			name:    "bad availability",
			yaml:    `resources: [{business_id: 1, name: a, kind: staff, availability: {monday: [{start: "17:00", end: "09:00"}]}}]`,
			wantErr: "monday[0] start time must be before end time",
		},
		{
			name:    "bad policy",
			yaml:    "resources: [{business_id: 1, name: a, kind: staff}]\npolicies: [{business_id: 1, buffer_time_mins: -5}]",
			wantErr: "policy[0]:",
		},
		{
			name:    "bad holiday",
			yaml:    "resources: [{business_id: 1, name: a, kind: staff}]\nholidays: [{date: 01.01.2026}]",
			wantErr: "holiday[0]: invalid date format '01.01.2026', expected YYYY-MM-DD",
		},
		{
			name:    "bad day off",
			yaml:    "resources: [{business_id: 1, name: a, kind: staff}]\ndefaults: {days_off: [0]}",
			wantErr: "defaults.days_off[0]: invalid day 0, must be 1-7 (1=Mon, 7=Sun)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResourcesConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWatchResources(t *testing.T) {
	path := writeFile(t, "resources.yaml", resourcesYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan *ResourcesConfig, 4)
	err := WatchResources(ctx, path, 10*time.Millisecond, zerolog.Nop(), func(c *ResourcesConfig) {
		updates <- c
	})
	require.NoError(t, err)

	first := <-updates
	assert.Len(t, first.Resources, 3)

	changed := resourcesYAML + `
  - business_id: 3
    name: Tent
    kind: rental_product
    capacity: 2
`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case second := <-updates:
		assert.Len(t, second.Resources, 4)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not observed")
	}
}

func TestWatchResources_InvalidInitialFile(t *testing.T) {
	path := writeFile(t, "resources.yaml", "resources: []")
	err := WatchResources(context.Background(), path, time.Second, zerolog.Nop(), nil)
	assert.Error(t, err)
}
