package views

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ptr[T any](v T) *T { return &v }

func grouped(id, defID, client int64, n, total int, desc string, status billing.Status, due *time.Time) billing.Installment {
	return billing.Installment{
		ID:                  id,
		BillingDefinitionID: ptr(defID),
		ClientID:            client,
		Description:         billing.RenderInstallmentDescription(desc, n, total),
		Amount:              decimal.RequireFromString("300"),
		DueDate:             due,
		Status:              status,
		InstallmentNumber:   ptr(n),
		TotalInstallments:   ptr(total),
	}
}

func oneTime(id, client int64, desc, amount string, status billing.Status, due *time.Time) billing.Installment {
	return billing.Installment{
		ID:          id,
		ClientID:    client,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		DueDate:     due,
		Status:      status,
	}
}

func sampleInput() ProjectionInput {
	return ProjectionInput{
		Definitions: []billing.BillingDefinition{
			{ID: 1, ClientID: 10, Description: "Gym", Amount: decimal.RequireFromString("300"), DueDay: 5, Installments: 3, Status: billing.StatusPending},
		},
		Installments: []billing.Installment{
			grouped(101, 1, 10, 1, 3, "Gym", billing.StatusPaid, date(2024, time.January, 5)),
			grouped(102, 1, 10, 2, 3, "Gym", billing.StatusPending, date(2024, time.February, 5)),
			grouped(103, 1, 10, 3, 3, "Gym", billing.StatusPending, date(2024, time.March, 5)),
			oneTime(201, 20, "Setup fee", "100", billing.StatusPaid, date(2024, time.January, 2)),
			oneTime(202, 20, "Consulting", "250.50", billing.StatusPending, date(2024, time.January, 20)),
		},
		ClientNames: map[int64]string{10: "Ana", 20: "José Souza"},
	}
}

func byKey(views []VirtualBillingView) map[string]VirtualBillingView {
	out := make(map[string]VirtualBillingView, len(views))
	for _, v := range views {
		out[v.Key] = v
	}
	return out
}

func TestProjectEmptyInput(t *testing.T) {
	views := Project(ProjectionInput{}, ScopeAll, ModeGrouped, Filters{})
	require.NotNil(t, views)
	assert.Empty(t, views)
}

func TestProjectOpenGrouped(t *testing.T) {
	views := Project(sampleInput(), ScopeOpen, ModeGrouped, Filters{})
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, ScopeOpen, v.Scope)
	assert.Equal(t, "Gym", v.Description)
	assert.Equal(t, "Ana", v.ClientName)
	assert.True(t, v.Amount.Equal(decimal.RequireFromString("300")))
	assert.Equal(t, 3, v.CurrentInstallment)
	assert.Equal(t, 3, v.Installments)
	assert.Equal(t, billing.StatusPending, v.Status)
	assert.Equal(t, []int64{101, 102, 103}, v.InstallmentIDs)
	assert.Equal(t, 5, v.DueDay)
	require.NotNil(t, v.BillingDefinitionID)
	assert.Equal(t, int64(1), *v.BillingDefinitionID)
	// next unsettled date, not the paid January row
	assert.Equal(t, date(2024, time.February, 5), v.DueDate)
}

func TestProjectOpenAnyCancelledWins(t *testing.T) {
	input := sampleInput()
	input.Installments[0].Status = billing.StatusCancelled

	views := Project(input, ScopeOpen, ModeGrouped, Filters{})
	require.Len(t, views, 1)
	assert.Equal(t, billing.StatusCancelled, views[0].Status)

	assert.Empty(t, Project(input, ScopeOpen, ModeGrouped, Filters{Statuses: []string{"pending"}}))
	assert.Empty(t, Project(input, ScopeOpen, ModeGrouped, Filters{Statuses: []string{"active"}}))
	assert.Len(t, Project(input, ScopeOpen, ModeGrouped, Filters{Statuses: []string{"inactive"}}), 1)
}

func TestProjectOpenDefinitionWithoutRows(t *testing.T) {
	input := ProjectionInput{
		Definitions: []billing.BillingDefinition{{
			ID: 5, ClientID: 10, Description: "Newsletter", Amount: decimal.RequireFromString("19.90"),
			DueDay: 10, Installments: 12, Status: billing.StatusPending,
			StartDate: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		}},
	}
	views := Project(input, ScopeOpen, ModeGrouped, Filters{})
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].CurrentInstallment)
	assert.Equal(t, 12, views[0].Installments)
	assert.Equal(t, date(2024, time.June, 1), views[0].EarliestDate)
}

func TestProjectOpenInactiveDefinition(t *testing.T) {
	input := sampleInput()
	input.Definitions[0].Status = billing.StatusCancelled

	views := Project(input, ScopeOpen, ModeGrouped, Filters{})
	require.Len(t, views, 1)
	assert.Equal(t, billing.StatusCancelled, views[0].Status)
}

func TestProjectClosedGrouped(t *testing.T) {
	views := Project(sampleInput(), ScopeClosed, ModeGrouped, Filters{})
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, "closed:20", v.Key)
	assert.True(t, v.Amount.Equal(decimal.RequireFromString("350.50")))
	assert.Equal(t, 1, v.CurrentInstallment)
	assert.Equal(t, 2, v.Installments)
	assert.Equal(t, billing.StatusPending, v.Status)
	assert.Equal(t, "Setup fee, Consulting", v.Description)
}

func TestProjectClosedAllCancelledRule(t *testing.T) {
	input := sampleInput()
	input.Installments[3].Status = billing.StatusCancelled

	views := Project(input, ScopeClosed, ModeGrouped, Filters{})
	require.Len(t, views, 1)
	assert.Equal(t, billing.StatusPending, views[0].Status)

	input.Installments[4].Status = billing.StatusCancelled
	views = Project(input, ScopeClosed, ModeGrouped, Filters{})
	require.Len(t, views, 1)
	assert.Equal(t, billing.StatusCancelled, views[0].Status)
}

func TestProjectClosedExcludesClientWithActiveOpenGroup(t *testing.T) {
	input := sampleInput()
	input.Installments = append(input.Installments, oneTime(301, 10, "Towel", "15", billing.StatusPending, nil))

	views := byKey(Project(input, ScopeClosed, ModeGrouped, Filters{}))
	assert.NotContains(t, views, "closed:10")
	assert.Contains(t, views, "closed:20")

	// once the open group is inactive the client's one-time rows reappear
	input.Definitions[0].Status = billing.StatusCancelled
	views = byKey(Project(input, ScopeClosed, ModeGrouped, Filters{}))
	assert.Contains(t, views, "closed:10")
}

func TestProjectExpanded(t *testing.T) {
	views := Project(sampleInput(), ScopeAll, ModeExpanded, Filters{})
	require.Len(t, views, 5)
	for _, v := range views {
		assert.Equal(t, ModeExpanded, v.Mode)
		assert.Len(t, v.InstallmentIDs, 1)
	}
	assert.Equal(t, "installment:201", views[0].Key)

	paid := Project(sampleInput(), ScopeAll, ModeExpanded, Filters{Statuses: []string{"paid", "overdue", "bogus"}})
	require.Len(t, paid, 2)
	for _, v := range paid {
		assert.Equal(t, billing.StatusPaid, v.Status)
	}
}

func TestProjectAllSortsByEarliestDate(t *testing.T) {
	views := Project(sampleInput(), ScopeAll, ModeGrouped, Filters{})
	require.Len(t, views, 2)
	assert.Equal(t, "closed:20", views[0].Key)
	assert.Equal(t, ScopeClosed, views[0].Scope)
	assert.Equal(t, ScopeOpen, views[1].Scope)
}

func TestProjectSortNilDatesLastThenClientName(t *testing.T) {
	input := ProjectionInput{
		Installments: []billing.Installment{
			oneTime(1, 1, "a", "1", billing.StatusPending, nil),
			oneTime(2, 2, "b", "1", billing.StatusPending, nil),
			oneTime(3, 3, "c", "1", billing.StatusPending, date(2025, time.January, 1)),
		},
		ClientNames: map[int64]string{1: "Zeca", 2: "Ágata", 3: "Mia"},
	}
	views := Project(input, ScopeClosed, ModeGrouped, Filters{})
	require.Len(t, views, 3)
	assert.Equal(t, "Mia", views[0].ClientName)
	assert.Equal(t, "Ágata", views[1].ClientName)
	assert.Equal(t, "Zeca", views[2].ClientName)
}

func TestProjectSearchIgnoresCaseAndAccents(t *testing.T) {
	views := Project(sampleInput(), ScopeAll, ModeGrouped, Filters{Search: "jose"})
	require.Len(t, views, 1)
	assert.Equal(t, int64(20), views[0].ClientID)

	views = Project(sampleInput(), ScopeAll, ModeExpanded, Filters{Search: "CONSULT"})
	require.Len(t, views, 1)
	assert.Equal(t, "installment:202", views[0].Key)
}

func TestProjectDeliveryOnly(t *testing.T) {
	input := sampleInput()
	input.Installments[4].DeliveryBased = true
	input.Installments[4].DueDate = nil

	views := Project(input, ScopeAll, ModeGrouped, Filters{DeliveryOnly: true})
	require.Len(t, views, 1)
	assert.Equal(t, "closed:20", views[0].Key)
}

func TestProjectGroupedAllClearsStatusFilter(t *testing.T) {
	views := Project(sampleInput(), ScopeAll, ModeGrouped, Filters{Statuses: []string{"inactive", "all"}})
	assert.Len(t, views, 2)
}

func TestProjectGroupedIgnoresExpandedOnlyStatuses(t *testing.T) {
	input := sampleInput()
	input.Installments[0].Status = billing.StatusCancelled

	assert.Empty(t, Project(input, ScopeAll, ModeGrouped, Filters{Statuses: []string{"paid"}}))
	assert.Len(t, Project(input, ScopeAll, ModeGrouped, Filters{Statuses: []string{"paid", "inactive"}}), 1)
	assert.Empty(t, Project(input, ScopeAll, ModeExpanded, Filters{Statuses: []string{"active"}}))
}
