package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueGroupNumber guards (billing_definition_id, installment_number).
const uniqueGroupNumber = "uq_installments_group_number"

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func execPatch(ctx context.Context, db execer, table string, allowed map[string]struct{}, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	set, args, err := buildPatch(allowed, updates)
	if err != nil {
		return err
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, set, len(args))

	cmdTag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// mapWriteError turns a numbering collision into an InconsistentGroupError.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == uniqueGroupNumber {
		return &InconsistentGroupError{Reason: "installment number already taken: " + pgErr.Detail}
	}
	return err
}

// LockDefinition loads a definition and holds a row lock until commit.
func (t *txRepository) LockDefinition(ctx context.Context, id int64) (*BillingDefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM billing_definitions WHERE id = $1 FOR UPDATE`
	def, err := scanDefinition(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return def, nil
}

// CreateDefinition inserts a billing definition.
func (t *txRepository) CreateDefinition(ctx context.Context, def BillingDefinition) (int64, error) {
	query := `
		INSERT INTO billing_definitions (
			client_id, description, amount, due_day, payment_method, start_date,
			end_date, installments, current_installment, status, email_template
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		def.ClientID, def.Description, def.Amount, def.DueDay, def.PaymentMethod, def.StartDate,
		def.EndDate, def.Installments, def.CurrentInstallment, string(def.Status), def.EmailTemplate,
	).Scan(&id)
	return id, err
}

// UpdateDefinition patches definition fields.
func (t *txRepository) UpdateDefinition(ctx context.Context, id int64, updates map[string]interface{}) error {
	return execPatch(ctx, t.tx, "billing_definitions", definitionPatchable, id, updates)
}

// DeleteDefinition removes a definition row.
func (t *txRepository) DeleteDefinition(ctx context.Context, id int64) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM billing_definitions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroupInstallments returns the definition's rows ordered by number.
func (t *txRepository) ListGroupInstallments(ctx context.Context, definitionID int64) ([]Installment, error) {
	query := `SELECT` + installmentColumns + `
		FROM installments
		WHERE billing_definition_id = $1
		ORDER BY installment_number NULLS LAST, id
		FOR UPDATE`
	rows, err := t.tx.Query(ctx, query, definitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInstallments(rows)
}

// InsertInstallments inserts rows in one batch round trip and returns their IDs in order.
func (t *txRepository) InsertInstallments(ctx context.Context, rows []Installment) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query := `
		INSERT INTO installments (
			billing_definition_id, client_id, description, amount, due_date,
			payment_date, payment_method, status, installment_number,
			total_installments, delivery_based
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query,
			row.BillingDefinitionID, row.ClientID, row.Description, row.Amount, row.DueDate,
			row.PaymentDate, row.PaymentMethod, string(row.Status), row.InstallmentNumber,
			row.TotalInstallments, row.DeliveryBased,
		)
	}

	results := t.tx.SendBatch(ctx, batch)
	ids := make([]int64, 0, len(rows))
	for range rows {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			_ = results.Close()
			return nil, mapWriteError(err)
		}
		ids = append(ids, id)
	}
	if err := results.Close(); err != nil {
		return nil, mapWriteError(err)
	}
	return ids, nil
}

// UpdateInstallments rewrites the schedule fields of existing rows in one batch.
func (t *txRepository) UpdateInstallments(ctx context.Context, rows []Installment) error {
	if len(rows) == 0 {
		return nil
	}
	query := `
		UPDATE installments
		SET description = $1, due_date = $2, installment_number = $3,
		    total_installments = $4, updated_at = NOW()
		WHERE id = $5
	`
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(query, row.Description, row.DueDate, row.InstallmentNumber, row.TotalInstallments, row.ID)
	}

	results := t.tx.SendBatch(ctx, batch)
	for _, row := range rows {
		cmdTag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return mapWriteError(err)
		}
		if cmdTag.RowsAffected() == 0 {
			_ = results.Close()
			return fmt.Errorf("installment %d: %w", row.ID, ErrNotFound)
		}
	}
	return mapWriteError(results.Close())
}

// UpdateInstallment patches installment fields inside the transaction.
func (t *txRepository) UpdateInstallment(ctx context.Context, id int64, updates map[string]interface{}) error {
	return execPatch(ctx, t.tx, "installments", installmentPatchable, id, updates)
}

// DeleteInstallment removes a single installment.
func (t *txRepository) DeleteInstallment(ctx context.Context, id int64) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM installments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGroupInstallments removes every installment of a definition.
func (t *txRepository) DeleteGroupInstallments(ctx context.Context, definitionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM installments WHERE billing_definition_id = $1`, definitionID)
	return err
}
