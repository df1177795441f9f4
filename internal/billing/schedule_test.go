package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateOnDayClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  time.Time
	}{
		{"regular", 2024, time.March, 15, day(2024, time.March, 15)},
		{"leap february", 2024, time.February, 31, day(2024, time.February, 29)},
		{"common february", 2023, time.February, 31, day(2023, time.February, 28)},
		{"thirty day month", 2024, time.April, 31, day(2024, time.April, 30)},
		{"rolls into next year", 2024, time.Month(14), 3, day(2025, time.February, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateOnDay(tt.year, tt.month, tt.day))
		})
	}
}

func TestFirstDueDate(t *testing.T) {
	assert.Equal(t, day(2024, time.January, 5), FirstDueDate(day(2024, time.January, 5), 5))
	assert.Equal(t, day(2024, time.February, 5), FirstDueDate(day(2024, time.January, 10), 5))
	assert.Equal(t, day(2024, time.January, 31), FirstDueDate(day(2024, time.January, 30), 31))
	assert.Equal(t, day(2024, time.February, 29), FirstDueDate(day(2024, time.February, 2), 31))
}

func TestAddMonthsDoesNotDrift(t *testing.T) {
	d := day(2024, time.January, 31)
	feb := AddMonths(d, 1, 31)
	assert.Equal(t, day(2024, time.February, 29), feb)
	assert.Equal(t, day(2024, time.March, 31), AddMonths(feb, 1, 31))
	assert.Equal(t, day(2025, time.January, 31), AddMonths(d, 12, 31))
}

func TestMoveToDayKeepsMonth(t *testing.T) {
	assert.Equal(t, day(2024, time.June, 30), MoveToDay(day(2024, time.June, 10), 31))
	assert.Equal(t, day(2024, time.June, 1), MoveToDay(day(2024, time.June, 10), 1))
}
