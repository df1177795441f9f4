package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics mencatat metrik domain billing. Semua method aman dipanggil pada nil.
type BillingMetrics struct {
	generated    prometheus.Counter
	recalculated *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	syncs        *prometheus.CounterVec
	repairs      prometheus.Counter
}

// NewBillingMetrics mendaftarkan metrik billing ke registerer.
func NewBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &BillingMetrics{
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_billing_installments_generated_total",
			Help: "Jumlah cicilan yang dibuat oleh generator jadwal.",
		}),
		recalculated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_billing_due_date_recalculations_total",
			Help: "Jumlah baris cicilan yang dipindahkan ke hari jatuh tempo baru.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_billing_status_transitions_total",
			Help: "Perubahan status cicilan berdasarkan status asal dan tujuan.",
		}, []string{"from", "to"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_billing_cashflow_sync_total",
			Help: "Sinkronisasi arus kas berdasarkan hasil.",
		}, []string{"result"}),
		repairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_billing_group_repairs_total",
			Help: "Jumlah grup cicilan yang dinomori ulang.",
		}),
	}
	registerer.MustRegister(m.generated, m.recalculated, m.transitions, m.syncs, m.repairs)
	return m
}

// InstallmentsGenerated menambah counter cicilan baru.
func (m *BillingMetrics) InstallmentsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.generated.Add(float64(n))
}

// DueDatesRecalculated mencatat hasil batch perubahan hari jatuh tempo.
func (m *BillingMetrics) DueDatesRecalculated(updated, failed int) {
	if m == nil {
		return
	}
	if updated > 0 {
		m.recalculated.WithLabelValues("updated").Add(float64(updated))
	}
	if failed > 0 {
		m.recalculated.WithLabelValues("failed").Add(float64(failed))
	}
}

// Transition mencatat satu perubahan status.
func (m *BillingMetrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// CashFlowSync mencatat hasil sinkronisasi arus kas.
func (m *BillingMetrics) CashFlowSync(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.syncs.WithLabelValues(result).Inc()
}

// GroupRepaired menambah counter perbaikan grup.
func (m *BillingMetrics) GroupRepaired() {
	if m == nil {
		return
	}
	m.repairs.Inc()
}
