package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/views"
)

// portfolio builds clients each holding a 12-month plan and a few one-time charges.
func portfolio(clients int) views.ProjectionInput {
	input := views.ProjectionInput{ClientNames: make(map[int64]string, clients)}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var nextID int64 = 1
	for c := 1; c <= clients; c++ {
		clientID := int64(c)
		input.ClientNames[clientID] = fmt.Sprintf("Cliente %04d", c)

		def := billing.BillingDefinition{
			ID:           clientID,
			ClientID:     clientID,
			Description:  "Mensalidade",
			Amount:       decimal.NewFromInt(199),
			DueDay:       1 + c%28,
			StartDate:    start,
			Installments: 12,
			Status:       billing.StatusPending,
		}
		// every third client has finished their plan
		if c%3 == 0 {
			def.Status = billing.StatusCancelled
		}
		input.Definitions = append(input.Definitions, def)

		res, err := billing.Generate(def, nil, 12, 1, nil)
		if err != nil {
			panic(err)
		}
		for i := range res.New {
			res.New[i].ID = nextID
			nextID++
			if i < 4 {
				res.New[i].Status = billing.StatusPaid
				res.New[i].PaymentDate = res.New[i].DueDate
			}
		}
		input.Installments = append(input.Installments, res.New...)

		for k := 0; k < 3; k++ {
			due := start.AddDate(0, k, 10)
			input.Installments = append(input.Installments, billing.Installment{
				ID:          nextID,
				ClientID:    clientID,
				Description: fmt.Sprintf("Avulso %d", k+1),
				Amount:      decimal.NewFromInt(50),
				DueDate:     &due,
				Status:      billing.StatusPending,
			})
			nextID++
		}
	}
	return input
}

func TestProjectionLatencyTargets(t *testing.T) {
	input := portfolio(2000)
	scenarios := []struct {
		name      string
		scope     views.Scope
		mode      views.Mode
		filters   views.Filters
		threshold time.Duration
	}{
		{name: "grouped-all", scope: views.ScopeAll, mode: views.ModeGrouped, threshold: 500 * time.Millisecond},
		{name: "expanded-open", scope: views.ScopeOpen, mode: views.ModeExpanded, threshold: 500 * time.Millisecond},
		{name: "search", scope: views.ScopeAll, mode: views.ModeGrouped, filters: views.Filters{Search: "cliente 19"}, threshold: 500 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 10)
		for i := 0; i < 10; i++ {
			start := time.Now()
			out := views.Project(input, scenario.scope, scenario.mode, scenario.filters)
			samples = append(samples, time.Since(start))
			if len(out) == 0 {
				t.Fatalf("%s: empty projection", scenario.name)
			}
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkProjectGrouped(b *testing.B) {
	input := portfolio(2000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		views.Project(input, views.ScopeAll, views.ModeGrouped, views.Filters{})
	}
}

func BenchmarkGenerateSchedule(b *testing.B) {
	def := billing.BillingDefinition{
		ID: 1, ClientID: 1, Description: "Plano", Amount: decimal.NewFromInt(100),
		DueDay: 31, StartDate: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), Installments: 60,
	}
	for i := 0; i < b.N; i++ {
		if _, err := billing.Generate(def, nil, 60, 1, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
