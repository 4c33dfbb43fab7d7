package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// CustomerLedger records receivable movements and keeps customers.current_balance equal
// to the sum of the customer's ledger amounts. Each write locks the customer row first.
type CustomerLedger interface {
	CreateCustomer(ctx context.Context, actor string, in NewCustomer) (*Customer, error)
	CreateEntry(ctx context.Context, actor string, in LedgerEntryInput) (*LedgerEntry, error)
	// UpdateEntry rewrites type, amount, date and description and moves the balance by the difference.
	UpdateEntry(ctx context.Context, actor string, ledgerID int64, in LedgerEntryInput) (*LedgerEntry, error)
	DeleteEntry(ctx context.Context, actor string, ledgerID int64) error

	CreateEntryTx(ctx context.Context, tx pgx.Tx, in LedgerEntryInput) (*LedgerEntry, error)
	// ReverseReferenceTx books a compensating entry per customer for the net amount
	// recorded under referenceID. Calling it again is a no-op.
	ReverseReferenceTx(ctx context.Context, tx pgx.Tx, referenceID, description string) ([]LedgerEntry, error)

	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	// GetEntries lists a customer's entries in date order with a running balance.
	// from and to are optional YYYY-MM-DD bounds; the running balance still counts earlier rows.
	GetEntries(ctx context.Context, customerID, from, to string) ([]LedgerEntry, error)
	// GetCustomersWithDebt first recomputes every balance from the ledger, then lists
	// active customers with a positive balance, largest first.
	GetCustomersWithDebt(ctx context.Context) ([]Customer, error)
}

type customerLedger struct {
	serviceBase
}

func NewCustomerLedger(pool *pgxpool.Pool, opts ...Option) CustomerLedger {
	return &customerLedger{serviceBase: newServiceBase(pool, "ledger", opts)}
}

func (l *customerLedger) lockCustomer(ctx context.Context, tx pgx.Tx, customerID string) error {
	var id string
	err := tx.QueryRow(ctx, "SELECT customer_id FROM customers WHERE customer_id = $1 FOR UPDATE", customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr("customer %s", customerID)
		}
		return fmt.Errorf("failed to lock customer %s: %w", customerID, err)
	}
	return nil
}

func (l *customerLedger) addBalanceTx(ctx context.Context, tx pgx.Tx, customerID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE customers SET current_balance = current_balance + $1, updated_at = NOW()
		WHERE customer_id = $2
	`, delta, customerID)
	if err != nil {
		return fmt.Errorf("failed to update balance of customer %s: %w", customerID, err)
	}
	return nil
}

func validateEntry(in *LedgerEntryInput) error {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	if in.CustomerID == "" {
		return validationErr("customer id is required")
	}
	if !in.TransactionType.IsValid() {
		return validationErr("invalid ledger transaction type %q", in.TransactionType)
	}
	if strings.TrimSpace(in.TransactionDate) == "" {
		in.TransactionDate = today()
		return nil
	}
	d, err := ParseDate(in.TransactionDate)
	if err != nil {
		return err
	}
	in.TransactionDate = d
	return nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (l *customerLedger) CreateEntryTx(ctx context.Context, tx pgx.Tx, in LedgerEntryInput) (*LedgerEntry, error) {
	if err := validateEntry(&in); err != nil {
		return nil, err
	}
	if err := l.lockCustomer(ctx, tx, in.CustomerID); err != nil {
		return nil, err
	}

	e := LedgerEntry{
		CustomerID:      in.CustomerID,
		TransactionDate: in.TransactionDate,
		TransactionType: in.TransactionType,
		Amount:          in.TransactionType.Normalize(in.Amount),
		Description:     in.Description,
		ReferenceID:     in.ReferenceID,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO customer_ledger (customer_id, transaction_date, transaction_type, amount, description, reference_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING ledger_id, COALESCE(created_by, ''), created_at
	`, e.CustomerID, e.TransactionDate, string(e.TransactionType), e.Amount, e.Description, e.ReferenceID,
	).Scan(&e.ID, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, dbErr("insert ledger entry for customer "+e.CustomerID, err)
	}

	if err := l.addBalanceTx(ctx, tx, e.CustomerID, e.Amount); err != nil {
		return nil, err
	}
	return &e, nil
}

func (l *customerLedger) ReverseReferenceTx(ctx context.Context, tx pgx.Tx, referenceID, description string) ([]LedgerEntry, error) {
	if referenceID == "" {
		return nil, validationErr("reference id is required for reversal")
	}

	rows, err := tx.Query(ctx, `
		SELECT customer_id, SUM(amount)
		FROM customer_ledger
		WHERE reference_id = $1
		GROUP BY customer_id
		HAVING SUM(amount) <> 0
		ORDER BY customer_id
	`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger effects of %s: %w", referenceID, err)
	}
	type netAmount struct {
		customerID string
		net        int64
	}
	var nets []netAmount
	for rows.Next() {
		var n netAmount
		if err := rows.Scan(&n.customerID, &n.net); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan ledger effect: %w", err)
		}
		nets = append(nets, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger effects of %s: %w", referenceID, err)
	}

	var entries []LedgerEntry
	for _, n := range nets {
		in := LedgerEntryInput{
			CustomerID:      n.customerID,
			TransactionType: LedgerSaleCancel,
			Amount:          n.net,
			Description:     description,
			ReferenceID:     referenceID,
		}
		if n.net < 0 {
			// 조정 keeps its sign, so a credit is undone with a positive adjustment.
			in.TransactionType = LedgerAdjustment
			in.Amount = -n.net
		}
		e, err := l.CreateEntryTx(ctx, tx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to reverse %s for customer %s: %w", referenceID, n.customerID, err)
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (l *customerLedger) CreateCustomer(ctx context.Context, actor string, in NewCustomer) (*Customer, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.Name == "" {
		return nil, validationErr("customer id and name are required")
	}

	tx, err := beginAs(ctx, l.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var c Customer
	err = tx.QueryRow(ctx, `
		INSERT INTO customers (customer_id, customer_name, mobile_number, status)
		VALUES ($1, $2, $3, $4)
		RETURNING customer_id, customer_name, mobile_number, status, current_balance, created_at
	`, in.ID, in.Name, blankToNil(in.MobileNumber), CustomerActive,
	).Scan(&c.ID, &c.Name, &c.MobileNumber, &c.Status, &c.CurrentBalance, &c.CreatedAt)
	if err != nil {
		return nil, dbErr("create customer "+in.ID, err)
	}

	if in.OpeningBalance != 0 {
		e, err := l.CreateEntryTx(ctx, tx, LedgerEntryInput{
			CustomerID:      c.ID,
			TransactionType: LedgerCarryOver,
			Amount:          in.OpeningBalance,
			Description:     "기초 잔액 이월",
		})
		if err != nil {
			return nil, err
		}
		c.CurrentBalance = e.Amount
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit customer %s: %w", c.ID, err)
	}
	l.committed(ctx, "customer", "created", c.ID, actor)
	return &c, nil
}

func (l *customerLedger) CreateEntry(ctx context.Context, actor string, in LedgerEntryInput) (*LedgerEntry, error) {
	tx, err := beginAs(ctx, l.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	e, err := l.CreateEntryTx(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	l.committed(ctx, "ledger", "created", strconv.FormatInt(e.ID, 10), actor,
		zap.String("customer_id", e.CustomerID), zap.Int64("amount", e.Amount))
	return e, nil
}

func (l *customerLedger) UpdateEntry(ctx context.Context, actor string, ledgerID int64, in LedgerEntryInput) (*LedgerEntry, error) {
	tx, err := beginAs(ctx, l.pool, actor)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var customerID string
	var oldAmount int64
	err = tx.QueryRow(ctx,
		"SELECT customer_id, amount FROM customer_ledger WHERE ledger_id = $1",
		ledgerID,
	).Scan(&customerID, &oldAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("ledger entry %d", ledgerID)
		}
		return nil, fmt.Errorf("failed to fetch ledger entry %d: %w", ledgerID, err)
	}

	if in.CustomerID == "" {
		in.CustomerID = customerID
	}
	if err := validateEntry(&in); err != nil {
		return nil, err
	}
	if in.CustomerID != customerID {
		return nil, validationErr("ledger entry %d belongs to customer %s, not %s", ledgerID, customerID, in.CustomerID)
	}
	if err := l.lockCustomer(ctx, tx, customerID); err != nil {
		return nil, err
	}
	// Re-read under the customer lock so a concurrent update cannot slip in between.
	if err := tx.QueryRow(ctx,
		"SELECT amount FROM customer_ledger WHERE ledger_id = $1 FOR UPDATE", ledgerID,
	).Scan(&oldAmount); err != nil {
		return nil, fmt.Errorf("failed to lock ledger entry %d: %w", ledgerID, err)
	}

	e := LedgerEntry{
		ID:              ledgerID,
		CustomerID:      customerID,
		TransactionDate: in.TransactionDate,
		TransactionType: in.TransactionType,
		Amount:          in.TransactionType.Normalize(in.Amount),
		Description:     in.Description,
	}
	err = tx.QueryRow(ctx, `
		UPDATE customer_ledger
		SET transaction_date = $1, transaction_type = $2, amount = $3, description = NULLIF($4, '')
		WHERE ledger_id = $5
		RETURNING COALESCE(reference_id, ''), COALESCE(created_by, ''), created_at
	`, e.TransactionDate, string(e.TransactionType), e.Amount, e.Description, ledgerID,
	).Scan(&e.ReferenceID, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, dbErr(fmt.Sprintf("update ledger entry %d", ledgerID), err)
	}

	if err := l.addBalanceTx(ctx, tx, customerID, e.Amount-oldAmount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger update: %w", err)
	}
	l.committed(ctx, "ledger", "updated", strconv.FormatInt(ledgerID, 10), actor,
		zap.String("customer_id", customerID), zap.Int64("diff", e.Amount-oldAmount))
	return &e, nil
}

func (l *customerLedger) DeleteEntry(ctx context.Context, actor string, ledgerID int64) error {
	tx, err := beginAs(ctx, l.pool, actor)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var customerID string
	err = tx.QueryRow(ctx, "SELECT customer_id FROM customer_ledger WHERE ledger_id = $1", ledgerID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr("ledger entry %d", ledgerID)
		}
		return fmt.Errorf("failed to fetch ledger entry %d: %w", ledgerID, err)
	}
	if err := l.lockCustomer(ctx, tx, customerID); err != nil {
		return err
	}

	var amount int64
	err = tx.QueryRow(ctx, "DELETE FROM customer_ledger WHERE ledger_id = $1 RETURNING amount", ledgerID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFoundErr("ledger entry %d", ledgerID)
		}
		return fmt.Errorf("failed to delete ledger entry %d: %w", ledgerID, err)
	}
	if err := l.addBalanceTx(ctx, tx, customerID, -amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger deletion: %w", err)
	}
	l.committed(ctx, "ledger", "deleted", strconv.FormatInt(ledgerID, 10), actor,
		zap.String("customer_id", customerID), zap.Int64("amount", amount))
	return nil
}

func (l *customerLedger) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var c Customer
	err := l.pool.QueryRow(ctx, `
		SELECT customer_id, customer_name, mobile_number, status, current_balance, created_at
		FROM customers WHERE customer_id = $1
	`, customerID).Scan(&c.ID, &c.Name, &c.MobileNumber, &c.Status, &c.CurrentBalance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErr("customer %s", customerID)
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", customerID, err)
	}
	return &c, nil
}

func (l *customerLedger) GetEntries(ctx context.Context, customerID, from, to string) ([]LedgerEntry, error) {
	fromDate, err := optionalDate(&from)
	if err != nil {
		return nil, err
	}
	toDate, err := optionalDate(&to)
	if err != nil {
		return nil, err
	}

	rows, err := l.pool.Query(ctx, `
		SELECT ledger_id, customer_id, transaction_date::text, transaction_type, amount,
		       description, reference_id, created_by, created_at, running_balance
		FROM (
			SELECT ledger_id, customer_id, transaction_date, transaction_type, amount,
			       COALESCE(description, '') AS description, COALESCE(reference_id, '') AS reference_id,
			       COALESCE(created_by, '') AS created_by, created_at,
			       SUM(amount) OVER (PARTITION BY customer_id ORDER BY transaction_date, ledger_id) AS running_balance
			FROM customer_ledger
			WHERE customer_id = $1
		) t
		WHERE ($2::date IS NULL OR t.transaction_date >= $2::date)
		  AND ($3::date IS NULL OR t.transaction_date <= $3::date)
		ORDER BY t.transaction_date, t.ledger_id
	`, customerID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger of customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.TransactionDate, &e.TransactionType, &e.Amount,
			&e.Description, &e.ReferenceID, &e.CreatedBy, &e.CreatedAt, &e.RunningBalance); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *customerLedger) GetCustomersWithDebt(ctx context.Context) ([]Customer, error) {
	repaired, err := l.reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if repaired > 0 {
		l.log.Warn("customer balances drifted from ledger and were recomputed", zap.Int64("customers", repaired))
	}

	rows, err := l.pool.Query(ctx, `
		SELECT customer_id, customer_name, mobile_number, status, current_balance, created_at
		FROM customers
		WHERE current_balance > 0 AND status = $1
		ORDER BY current_balance DESC, customer_id
	`, CustomerActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query debtors: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.MobileNumber, &c.Status, &c.CurrentBalance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debtor: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// reconcile overwrites drifted balances with the ledger sum in its own transaction
// and returns how many customers changed.
func (l *customerLedger) reconcile(ctx context.Context) (int64, error) {
	tx, err := beginAs(ctx, l.pool, SystemActor)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE customers c
		SET current_balance = s.total, updated_at = NOW()
		FROM (
			SELECT cu.customer_id, COALESCE(SUM(cl.amount), 0) AS total
			FROM customers cu
			LEFT JOIN customer_ledger cl ON cl.customer_id = cu.customer_id
			GROUP BY cu.customer_id
		) s
		WHERE s.customer_id = c.customer_id AND c.current_balance <> s.total
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile customer balances: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit balance reconciliation: %w", err)
	}
	return tag.RowsAffected(), nil
}
