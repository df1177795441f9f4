package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memRepository is an in-memory Repository. WithTx snapshots state and
// restores it when the callback fails.
type memRepository struct {
	mu     sync.Mutex
	defs   map[int64]BillingDefinition
	rows   map[int64]Installment
	nextID int64

	clients            map[int64]string
	failRowUpdates     map[int64]bool
	failUpdateSiblings error
}

func newMemRepository() *memRepository {
	return &memRepository{
		defs:           make(map[int64]BillingDefinition),
		rows:           make(map[int64]Installment),
		clients:        make(map[int64]string),
		failRowUpdates: make(map[int64]bool),
	}
}

func (r *memRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepository) GetDefinition(_ context.Context, id int64) (*BillingDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &def, nil
}

func (r *memRepository) ListDefinitions(_ context.Context) ([]BillingDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BillingDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepository) GetInstallment(_ context.Context, id int64) (*Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (r *memRepository) ListInstallments(_ context.Context, filter InstallmentFilter) ([]Installment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterRows(filter), nil
}

func (r *memRepository) filterRows(filter InstallmentFilter) []Installment {
	var out []Installment
	for _, row := range r.rows {
		if filter.BillingDefinitionID != nil && row.DefinitionID() != *filter.BillingDefinitionID {
			continue
		}
		if filter.ClientID != nil && row.ClientID != *filter.ClientID {
			continue
		}
		if filter.OnlyOneTime && row.BillingDefinitionID != nil {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, row.Status) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number() != out[j].Number() {
			return out[i].Number() < out[j].Number()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *memRepository) ListClientNames(_ context.Context, ids []int64) (map[int64]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := r.clients[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (r *memRepository) UpdateInstallment(_ context.Context, id int64, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRowUpdates[id] {
		return fmt.Errorf("row %d: connection reset", id)
	}
	return r.patchInstallment(id, updates)
}

func (r *memRepository) patchInstallment(id int64, updates map[string]interface{}) error {
	row, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			row.Status = Status(value.(string))
		case "due_date":
			switch v := value.(type) {
			case time.Time:
				row.DueDate = &v
			case *time.Time:
				row.DueDate = v
			}
		case "payment_date":
			row.PaymentDate = value.(*time.Time)
		case "delivery_based":
			row.DeliveryBased = value.(bool)
		default:
			return fmt.Errorf("unsupported patch field %q", field)
		}
	}
	r.rows[id] = row
	return nil
}

func (r *memRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make(map[int64]BillingDefinition, len(r.defs))
	for k, v := range r.defs {
		defs[k] = v
	}
	rows := make(map[int64]Installment, len(r.rows))
	for k, v := range r.rows {
		rows[k] = v
	}
	nextID := r.nextID

	if err := fn(ctx, &memTx{r: r}); err != nil {
		r.defs, r.rows, r.nextID = defs, rows, nextID
		return err
	}
	return nil
}

type memTx struct {
	r *memRepository
}

func (t *memTx) LockDefinition(_ context.Context, id int64) (*BillingDefinition, error) {
	def, ok := t.r.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &def, nil
}

func (t *memTx) CreateDefinition(_ context.Context, def BillingDefinition) (int64, error) {
	def.ID = t.r.id()
	t.r.defs[def.ID] = def
	return def.ID, nil
}

func (t *memTx) UpdateDefinition(_ context.Context, id int64, updates map[string]interface{}) error {
	def, ok := t.r.defs[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "installments":
			def.Installments = value.(int)
		case "current_installment":
			def.CurrentInstallment = value.(int)
		case "due_day":
			def.DueDay = value.(int)
		case "status":
			def.Status = Status(value.(string))
		default:
			return fmt.Errorf("unsupported patch field %q", field)
		}
	}
	t.r.defs[id] = def
	return nil
}

func (t *memTx) DeleteDefinition(_ context.Context, id int64) error {
	if _, ok := t.r.defs[id]; !ok {
		return ErrNotFound
	}
	delete(t.r.defs, id)
	return nil
}

func (t *memTx) ListGroupInstallments(_ context.Context, definitionID int64) ([]Installment, error) {
	return t.r.filterRows(InstallmentFilter{BillingDefinitionID: &definitionID}), nil
}

func (t *memTx) InsertInstallments(_ context.Context, rows []Installment) ([]int64, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		row.ID = t.r.id()
		t.r.rows[row.ID] = row
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (t *memTx) UpdateInstallments(_ context.Context, rows []Installment) error {
	if t.r.failUpdateSiblings != nil {
		return t.r.failUpdateSiblings
	}
	for _, row := range rows {
		current, ok := t.r.rows[row.ID]
		if !ok {
			return ErrNotFound
		}
		current.Description = row.Description
		current.DueDate = row.DueDate
		current.InstallmentNumber = row.InstallmentNumber
		current.TotalInstallments = row.TotalInstallments
		t.r.rows[row.ID] = current
	}
	return nil
}

func (t *memTx) UpdateInstallment(_ context.Context, id int64, updates map[string]interface{}) error {
	return t.r.patchInstallment(id, updates)
}

func (t *memTx) DeleteInstallment(_ context.Context, id int64) error {
	if _, ok := t.r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.r.rows, id)
	return nil
}

func (t *memTx) DeleteGroupInstallments(_ context.Context, definitionID int64) error {
	for id, row := range t.r.rows {
		if row.DefinitionID() == definitionID {
			delete(t.r.rows, id)
		}
	}
	return nil
}

// recordingSync captures cash-flow notifications.
type recordingSync struct {
	mu    sync.Mutex
	calls []CashFlowSyncRequest
	fail  error
}

func (s *recordingSync) Sync(_ context.Context, req CashFlowSyncRequest) CashFlowSyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.fail != nil {
		return CashFlowSyncResult{Error: s.fail.Error()}
	}
	return CashFlowSyncResult{Success: true}
}

var errSyncDown = errors.New("cash-flow unavailable")
