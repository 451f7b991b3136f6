package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbridge/internal/model"
)

func testRow(b model.Booking, room string) model.ViewRow {
	rows := ExpandRows([]model.Booking{b})
	for _, r := range rows {
		if r.Room == room {
			return r
		}
	}
	return model.ViewRow{Booking: b, Room: room}
}

func TestToLegacyRow_OneOffInstantRange(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:      "B1",
		Rooms:   []string{"A-101"},
		Status:  "approved",
		StartDT: "2025-10-22T13:00:00+07:00",
		EndDT:   "2025-10-22T14:30:00+07:00",
	}, "A-101")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)

	assert.Equal(t, "2025-10-22", lr.DateFrom)
	assert.Equal(t, "2025-10-22", lr.DateTo)
	assert.Equal(t, []string{"WE"}, lr.ByWeekday)
	assert.Equal(t, "13:00", lr.Start)
	assert.Equal(t, "14:30", lr.End)
	assert.Equal(t, "A-101", lr.RoomID)
}

func TestToLegacyRow_WeeklyPassthrough(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:        "B2",
		Rooms:     []string{"GF-1201"},
		DateFrom:  "2025-09-01",
		DateTo:    "2025-12-19",
		ByWeekday: []string{"MO", "WE"},
		Start:     "09:00",
		End:       "10:40",
	}, "GF-1201")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)
	assert.Equal(t, "2025-09-01", lr.DateFrom)
	assert.Equal(t, "2025-12-19", lr.DateTo)
	assert.Equal(t, []string{"MO", "WE"}, lr.ByWeekday)
	assert.Equal(t, "09:00", lr.Start)
	assert.Equal(t, "10:40", lr.End)
}

func TestToLegacyRow_IdempotentOnWeeklyShape(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:        "B3",
		Rooms:     []string{"GF-1201"},
		DateFrom:  "2025-09-01",
		DateTo:    "2025-12-19",
		ByWeekday: []string{"TU", "TH"},
		Start:     "13:00",
		End:       "15:00",
	}, "GF-1201")

	first, ok := c.ToLegacyRow(row)
	require.True(t, ok)

	// Feed the converter its own output.
	again := row
	again.StartDT, again.EndDT = "", ""
	again.DateFrom = first.DateFrom
	again.DateTo = first.DateTo
	again.ByWeekday = first.ByWeekday
	again.Start = first.Start
	again.End = first.End

	second, ok := c.ToLegacyRow(again)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestToLegacyRow_SingleDateWithClocks(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	// 2025-10-20 is a Monday.
	row := testRow(model.Booking{
		ID:    "B4",
		Rooms: []string{"GF-1202"},
		Date:  "2025-10-20",
		Start: "10:00",
		End:   "12:00",
	}, "GF-1202")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)
	assert.Equal(t, "2025-10-20", lr.DateFrom)
	assert.Equal(t, "2025-10-20", lr.DateTo)
	assert.Equal(t, []string{"MO"}, lr.ByWeekday)
	assert.Equal(t, "10:00", lr.Start)
	assert.Equal(t, "12:00", lr.End)
}

func TestToLegacyRow_InstantStringsInStartEnd(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:    "B5",
		Rooms: []string{"GF-1203"},
		Start: "2025-10-24T08:00:00+07:00",
		End:   "2025-10-24T09:30:00+07:00",
	}, "GF-1203")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)
	assert.Equal(t, "2025-10-24", lr.DateFrom)
	assert.Equal(t, []string{"FR"}, lr.ByWeekday)
	assert.Equal(t, "08:00", lr.Start)
	assert.Equal(t, "09:30", lr.End)
}

func TestToLegacyRow_OneOffWinsOverWeeklyFields(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:        "B6",
		Rooms:     []string{"GF-1201"},
		StartDT:   "2025-10-22T13:00:00+07:00",
		EndDT:     "2025-10-22T14:30:00+07:00",
		DateFrom:  "2025-09-01",
		DateTo:    "2025-12-19",
		ByWeekday: []string{"MO"},
		Start:     "09:00",
		End:       "10:40",
	}, "GF-1201")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)
	assert.Equal(t, "2025-10-22", lr.DateFrom)
	assert.Equal(t, []string{"WE"}, lr.ByWeekday)
	assert.Equal(t, "13:00", lr.Start)
}

func TestToLegacyRow_IncompleteRecordDropped(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	row := testRow(model.Booking{
		ID:    "B7",
		Rooms: []string{"GF-1204"},
		Start: "09:00", // clock times but no date anywhere
		End:   "10:00",
	}, "GF-1204")

	_, ok := c.ToLegacyRow(row)
	assert.False(t, ok)
}

func TestToLegacyRow_OffsetlessInstantUsesLocation(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	c := NewRecurrenceConverter(jakarta)

	row := testRow(model.Booking{
		ID:      "B8",
		Rooms:   []string{"GF-1205"},
		StartDT: "2025-10-22T13:00:00",
		EndDT:   "2025-10-22T14:30:00",
	}, "GF-1205")

	lr, ok := c.ToLegacyRow(row)
	require.True(t, ok)
	assert.Equal(t, "2025-10-22", lr.DateFrom)
	assert.Equal(t, []string{"WE"}, lr.ByWeekday)
}

func TestBuildLegacyRows_SkipsIncomplete(t *testing.T) {
	c := NewRecurrenceConverter(time.UTC)
	rows := ExpandRows([]model.Booking{
		{ID: "OK", Rooms: []string{"GF-1201"},
			StartDT: "2025-10-22T13:00:00+07:00", EndDT: "2025-10-22T14:30:00+07:00"},
		{ID: "BAD", Rooms: []string{"GF-1202"}, Title: "nothing usable"},
	})

	legacy := c.BuildLegacyRows(rows)
	require.Len(t, legacy, 1)
	assert.Equal(t, "OK", legacy[0].ID)
}

func TestNormalizeWeekdays(t *testing.T) {
	assert.Equal(t, []string{"MO", "WE"}, normalizeWeekdays([]string{"mo", "WE", "mo", "xx"}))
	assert.Empty(t, normalizeWeekdays([]string{"monday"}))
}
