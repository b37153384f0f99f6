package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcore/internal/config"
	"bookcore/internal/model"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
)

const syncYAML = `
defaults:
  availability:
    monday: [{start: "09:00", end: "17:00"}]
holidays:
  - date: "2026-01-05"
    name: Holiday
policies:
  - business_id: 1
    buffer_time_mins: 10
resources:
  - business_id: 1
    name: Anna
    kind: staff
    is_active: true
  - business_id: 1
    name: Kayak
    kind: rental_product
    capacity: 4
    is_active: true
`

func TestSyncResourcesFromConfig(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.ParseResourcesConfig([]byte(syncYAML))
	require.NoError(t, err)

	result, err := d.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Upserted: 2, Policies: 1}, result)

	list, err := d.ListResources(ctx, business)
	require.NoError(t, err)
	require.Len(t, list, 2)
	anna, kayak := list[0], list[1]
	assert.Equal(t, model.ResourceStaff, anna.Kind)
	assert.Equal(t, 4, kayak.Capacity)
	assert.Empty(t, anna.Calendar.IntervalsOn(schedule.MustDate("2026-01-05")), "holiday")
	assert.Len(t, anna.Calendar.IntervalsOn(schedule.MustDate("2026-01-12")), 1)

	pol, err := d.GetPolicy(ctx, business)
	require.NoError(t, err)
	assert.Equal(t, 10, pol.BufferTimeMins)

	// Dropping a resource from the file deactivates it but keeps its id.
	cfg.Resources = cfg.Resources[:1]
	result, err = d.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deactivated)

	got, err := d.GetResource(ctx, business, kayak.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = d.SyncResourcesFromConfig(ctx, nil)
	assert.Error(t, err)
}

func TestSyncResourcesFromConfig_KeepsEdits(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	cfg, err := config.ParseResourcesConfig([]byte(syncYAML))
	require.NoError(t, err)
	_, err = d.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)

	list, err := d.ListResources(ctx, business)
	require.NoError(t, err)
	anna := list[0]

	edited := schedule.NewCalendar().SetWeekly(time.Saturday, schedule.MustInterval("10:00", "12:00"))
	require.NoError(t, d.SaveCalendar(ctx, business, anna.ID, edited))
	require.NoError(t, d.SavePolicy(ctx, &policy.BookingPolicy{BusinessID: business, BufferTimeMins: 45}))

	result, err := d.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Upserted: 2}, result, "policy already exists")

	got, err := d.GetResource(ctx, business, anna.ID)
	require.NoError(t, err)
	saturday := schedule.MustDate("2026-01-10")
	assert.Equal(t, []schedule.Interval{schedule.MustInterval("10:00", "12:00")}, got.Calendar.IntervalsOn(saturday))
	assert.Empty(t, got.Calendar.IntervalsOn(schedule.MustDate("2026-01-12")), "file calendar not reapplied")

	pol, err := d.GetPolicy(ctx, business)
	require.NoError(t, err)
	assert.Equal(t, 45, pol.BufferTimeMins)

	// Non-calendar fields still follow the file.
	cfg.Resources[1].Capacity = 7
	_, err = d.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)
	list, err = d.ListResources(ctx, business)
	require.NoError(t, err)
	assert.Equal(t, 7, list[1].Capacity)
}
