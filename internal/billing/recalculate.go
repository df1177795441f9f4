package billing

import "time"

// Recalculate moves every still-movable future installment onto newDueDay and
// returns only the rows it changed. Paid, cancelled, past and delivery-based
// rows are left alone.
func Recalculate(newDueDay int, rows []Installment, today time.Time) []Installment {
	if newDueDay < 1 || newDueDay > 31 {
		return nil
	}
	today = dateOnly(today)
	var changed []Installment
	for _, row := range rows {
		if !eligibleForRecalc(row, today) {
			continue
		}
		moved := MoveToDay(*row.DueDate, newDueDay)
		if moved.Equal(dateOnly(*row.DueDate)) {
			continue
		}
		row.DueDate = &moved
		changed = append(changed, row)
	}
	return changed
}

func eligibleForRecalc(row Installment, today time.Time) bool {
	if row.DueDate == nil || row.DeliveryBased {
		return false
	}
	if !row.Status.IsMovable() {
		return false
	}
	return !dateOnly(*row.DueDate).Before(today)
}
