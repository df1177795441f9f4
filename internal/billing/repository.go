package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
)

// Repository defines the persistence operations the billing engine needs.
type Repository interface {
	// Read operations
	GetDefinition(ctx context.Context, id int64) (*BillingDefinition, error)
	ListDefinitions(ctx context.Context) ([]BillingDefinition, error)
	GetInstallment(ctx context.Context, id int64) (*Installment, error)
	ListInstallments(ctx context.Context, filter InstallmentFilter) ([]Installment, error)
	ListClientNames(ctx context.Context, ids []int64) (map[int64]string, error)

	// UpdateInstallment writes a single row outside any transaction.
	UpdateInstallment(ctx context.Context, id int64, updates map[string]interface{}) error

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	LockDefinition(ctx context.Context, id int64) (*BillingDefinition, error)
	CreateDefinition(ctx context.Context, def BillingDefinition) (int64, error)
	UpdateDefinition(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteDefinition(ctx context.Context, id int64) error

	ListGroupInstallments(ctx context.Context, definitionID int64) ([]Installment, error)
	InsertInstallments(ctx context.Context, rows []Installment) ([]int64, error)
	UpdateInstallments(ctx context.Context, rows []Installment) error
	UpdateInstallment(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteInstallment(ctx context.Context, id int64) error
	DeleteGroupInstallments(ctx context.Context, definitionID int64) error
}

const definitionColumns = `
	id, client_id, description, amount, due_day, payment_method, start_date,
	end_date, installments, current_installment, status, email_template,
	created_at, updated_at`

const installmentColumns = `
	id, billing_definition_id, client_id, description, amount, due_date,
	payment_date, payment_method, status, installment_number, total_installments,
	delivery_based, created_at, updated_at`

// Columns a patch may touch.
var (
	definitionPatchable = map[string]struct{}{
		"description": {}, "amount": {}, "due_day": {}, "payment_method": {},
		"start_date": {}, "end_date": {}, "installments": {}, "current_installment": {},
		"status": {}, "email_template": {},
	}
	installmentPatchable = map[string]struct{}{
		"description": {}, "amount": {}, "due_date": {}, "payment_date": {},
		"payment_method": {}, "status": {}, "installment_number": {},
		"total_installments": {}, "delivery_based": {},
	}
)

type rowScanner interface {
	Scan(dest ...any) error
}

// repository implements Repository using pgxpool.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// txRepository implements TxRepository.
type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetDefinition retrieves a billing definition by ID.
func (r *repository) GetDefinition(ctx context.Context, id int64) (*BillingDefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM billing_definitions WHERE id = $1`
	def, err := scanDefinition(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return def, nil
}

// ListDefinitions returns every billing definition ordered by start date.
func (r *repository) ListDefinitions(ctx context.Context) ([]BillingDefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM billing_definitions ORDER BY start_date, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []BillingDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// GetInstallment retrieves an installment by ID.
func (r *repository) GetInstallment(ctx context.Context, id int64) (*Installment, error) {
	query := `SELECT` + installmentColumns + ` FROM installments WHERE id = $1`
	inst, err := scanInstallment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inst, nil
}

// ListInstallments returns installments matching filter.
func (r *repository) ListInstallments(ctx context.Context, filter InstallmentFilter) ([]Installment, error) {
	query := `SELECT` + installmentColumns + ` FROM installments WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.BillingDefinitionID != nil {
		query += fmt.Sprintf(" AND billing_definition_id = $%d", argNum)
		args = append(args, *filter.BillingDefinitionID)
		argNum++
	}
	if filter.ClientID != nil {
		query += fmt.Sprintf(" AND client_id = $%d", argNum)
		args = append(args, *filter.ClientID)
		argNum++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argNum)
		args = append(args, statuses)
		argNum++
	}
	if filter.OnlyOneTime {
		query += " AND billing_definition_id IS NULL"
	}
	query += " ORDER BY billing_definition_id NULLS LAST, installment_number NULLS LAST, due_date NULLS LAST, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

// ListClientNames resolves client display names.
func (r *repository) ListClientNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM clients WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// UpdateInstallment patches a single installment in its own statement.
func (r *repository) UpdateInstallment(ctx context.Context, id int64, updates map[string]interface{}) error {
	return execPatch(ctx, r.pool, "installments", installmentPatchable, id, updates)
}

func collectInstallments(rows pgx.Rows) ([]Installment, error) {
	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func scanDefinition(row rowScanner) (*BillingDefinition, error) {
	var def BillingDefinition
	var status string
	err := row.Scan(
		&def.ID, &def.ClientID, &def.Description, &def.Amount, &def.DueDay,
		&def.PaymentMethod, &def.StartDate, &def.EndDate, &def.Installments,
		&def.CurrentInstallment, &status, &def.EmailTemplate,
		&def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Status = Status(status)
	return &def, nil
}

func scanInstallment(row rowScanner) (*Installment, error) {
	var inst Installment
	var status string
	err := row.Scan(
		&inst.ID, &inst.BillingDefinitionID, &inst.ClientID, &inst.Description,
		&inst.Amount, &inst.DueDate, &inst.PaymentDate, &inst.PaymentMethod,
		&status, &inst.InstallmentNumber, &inst.TotalInstallments,
		&inst.DeliveryBased, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.Status = Status(status)
	return &inst, nil
}

// buildPatch renders "SET a = $1, b = $2, updated_at = $n" for whitelisted columns.
func buildPatch(allowed map[string]struct{}, updates map[string]interface{}) (string, []any, error) {
	setClauses := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	argPos := 1

	for field, value := range updates {
		if _, ok := allowed[field]; !ok {
			return "", nil, fmt.Errorf("billing: column %q cannot be patched", field)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argPos))
		args = append(args, value)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now())

	return strings.Join(setClauses, ", "), args, nil
}
