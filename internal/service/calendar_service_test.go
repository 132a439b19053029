package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskops/helpdesk-sla/internal/calendar"
)

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) {
	r.ids = append(r.ids, id)
}

func officeInput() CalendarInput {
	std := calendar.Standard("Office", "UTC", 9, 18)
	return CalendarInput{Name: std.Name, Timezone: std.Timezone, Attendances: std.Attendances}
}

func TestCreateAndUpdateCalendarInvalidatesCache(t *testing.T) {
	store := memCalendars{}
	inv := &recordingInvalidator{}
	svc := NewCalendarService(CalendarDependencies{CalendarRepo: store, Cache: inv})
	ctx := context.Background()

	cal, err := svc.CreateCalendar(ctx, admin(), officeInput())
	require.NoError(t, err)

	input := officeInput()
	input.IsDefault = true
	_, err = svc.UpdateCalendar(ctx, admin(), cal.ID, input)
	require.NoError(t, err)

	assert.Equal(t, []string{cal.ID, cal.ID}, inv.ids)
	assert.True(t, store[cal.ID].IsDefault)
}

func TestCreateCalendarValidation(t *testing.T) {
	svc := NewCalendarService(CalendarDependencies{CalendarRepo: memCalendars{}})
	ctx := context.Background()

	input := officeInput()
	input.Timezone = "Mars/Olympus"
	_, err := svc.CreateCalendar(ctx, admin(), input)
	assert.Equal(t, "VALIDATION_FAILED", errCode(err))

	input = officeInput()
	input.Attendances = nil
	_, err = svc.CreateCalendar(ctx, admin(), input)
	assert.Equal(t, "VALIDATION_FAILED", errCode(err))

	_, err = svc.CreateCalendar(ctx, agentOf("support"), officeInput())
	assert.Equal(t, "FORBIDDEN", errCode(err))
}

func TestPlanPreview(t *testing.T) {
	store := memCalendars{}
	svc := NewCalendarService(CalendarDependencies{CalendarRepo: store})
	ctx := context.Background()

	cal, err := svc.CreateCalendar(ctx, admin(), officeInput())
	require.NoError(t, err)

	friday := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	deadline, err := svc.Plan(ctx, agentOf("support"), cal.ID, friday, 8)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), deadline)

	_, err = svc.Plan(ctx, admin(), cal.ID, friday, -1)
	assert.Equal(t, "VALIDATION_FAILED", errCode(err))
}
