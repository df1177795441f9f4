package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datedRow(id int64, status Status, due time.Time) Installment {
	return Installment{ID: id, Status: status, DueDate: &due}
}

func TestRecalculateMovesFutureRowsAndClamps(t *testing.T) {
	today := day(2024, time.January, 20)
	rows := []Installment{
		datedRow(1, StatusPending, day(2024, time.January, 10)),  // past
		datedRow(2, StatusPending, day(2024, time.February, 10)), // leap clamp
		datedRow(3, StatusOverdue, day(2024, time.March, 10)),
		datedRow(4, StatusPaid, day(2024, time.April, 10)),
		datedRow(5, StatusCancelled, day(2024, time.May, 10)),
		{ID: 6, Status: StatusPending},
		datedRow(7, StatusBilled, day(2024, time.June, 10)),
	}

	changed := Recalculate(31, rows, today)
	require.Len(t, changed, 3)

	got := map[int64]time.Time{}
	for _, row := range changed {
		got[row.ID] = *row.DueDate
	}
	assert.Equal(t, map[int64]time.Time{
		2: day(2024, time.February, 29),
		3: day(2024, time.March, 31),
		7: day(2024, time.June, 30),
	}, got)

	// source rows untouched
	assert.Equal(t, day(2024, time.February, 10), *rows[1].DueDate)
}

func TestRecalculateCommonYearFebruary(t *testing.T) {
	rows := []Installment{datedRow(1, StatusPending, day(2023, time.February, 1))}
	changed := Recalculate(31, rows, day(2023, time.January, 1))
	require.Len(t, changed, 1)
	assert.Equal(t, day(2023, time.February, 28), *changed[0].DueDate)
}

func TestRecalculateIncludesToday(t *testing.T) {
	today := day(2024, time.March, 10)
	rows := []Installment{datedRow(1, StatusPending, today)}
	changed := Recalculate(15, rows, today.Add(9*time.Hour))
	require.Len(t, changed, 1)
	assert.Equal(t, day(2024, time.March, 15), *changed[0].DueDate)
}

func TestRecalculateSkipsUnchangedAndDeliveryBased(t *testing.T) {
	today := day(2024, time.January, 1)
	delivery := datedRow(2, StatusPending, day(2024, time.March, 10))
	delivery.DeliveryBased = true
	rows := []Installment{
		datedRow(1, StatusPending, day(2024, time.February, 15)),
		delivery,
	}
	assert.Empty(t, Recalculate(15, rows, today))
	assert.Nil(t, Recalculate(0, rows, today))
}
