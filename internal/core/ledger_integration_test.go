package core_test

import (
	"context"
	"testing"

	"farm-ledger/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_BalanceProgression(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C100")

	_, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerSale, Amount: 10000, TransactionDate: "2024-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), e.balanceOf(t, c.ID))

	payment, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerPayment, Amount: 5000, TransactionDate: "2024-01-20",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), payment.Amount)
	assert.Equal(t, testActor, payment.CreatedBy)
	assert.Equal(t, int64(5000), e.balanceOf(t, c.ID))

	entries, err := e.ledger.GetEntries(ctx, c.ID, "", "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10000), entries[0].RunningBalance)
	assert.Equal(t, int64(5000), entries[1].RunningBalance)

	// A later window still carries the balance accumulated before it.
	window, err := e.ledger.GetEntries(ctx, c.ID, "2024-01-15", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(5000), window[0].RunningBalance)

	_, err = e.ledger.GetEntries(ctx, c.ID, "2024-13-01", "")
	assert.ErrorIs(t, err, core.ErrValidation)
	e.requireConsistent(t)
}

func TestLedger_SignNormalization(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C101")

	tests := []struct {
		typ    core.LedgerType
		amount int64
		want   int64
	}{
		{core.LedgerPayment, 5000, -5000},
		{core.LedgerCarryOver, -5000, 5000},
		{core.LedgerSale, -3000, 3000},
		{core.LedgerReceivable, 2000, 2000},
		{core.LedgerReturn, 1000, -1000},
		{core.LedgerSaleCancel, -700, -700},
		{core.LedgerAdjustment, -400, -400},
		{core.LedgerAdjustment, 400, 400},
	}
	var sum int64
	for _, tt := range tests {
		entry, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
			CustomerID: c.ID, TransactionType: tt.typ, Amount: tt.amount,
		})
		require.NoError(t, err, tt.typ)
		assert.Equal(t, tt.want, entry.Amount, tt.typ)
		sum += tt.want
	}
	assert.Equal(t, sum, e.balanceOf(t, c.ID))
	e.requireConsistent(t)
}

func TestLedger_UpdateAndDelete(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C102")

	entry, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerSale, Amount: 8000,
	})
	require.NoError(t, err)

	updated, err := e.ledger.UpdateEntry(ctx, testActor, entry.ID, core.LedgerEntryInput{
		TransactionType: core.LedgerPayment, Amount: 3000, TransactionDate: "2024-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-3000), updated.Amount)
	assert.Equal(t, "2024-02-01", updated.TransactionDate)
	assert.Equal(t, int64(-3000), e.balanceOf(t, c.ID))

	_, err = e.ledger.UpdateEntry(ctx, testActor, entry.ID, core.LedgerEntryInput{
		TransactionType: "외상", Amount: 1,
	})
	assert.ErrorIs(t, err, core.ErrValidation)

	require.NoError(t, e.ledger.DeleteEntry(ctx, testActor, entry.ID))
	assert.Zero(t, e.balanceOf(t, c.ID))

	assert.ErrorIs(t, e.ledger.DeleteEntry(ctx, testActor, entry.ID), core.ErrNotFound)
	_, err = e.ledger.UpdateEntry(ctx, testActor, 999999, core.LedgerEntryInput{
		TransactionType: core.LedgerSale, Amount: 1,
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
	e.requireConsistent(t)
}

func TestLedger_Validation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C103")

	_, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerSale, Amount: 1, TransactionDate: "01/02/2024",
	})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: "NOBODY", TransactionType: core.LedgerSale, Amount: 1,
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = e.ledger.CreateCustomer(ctx, testActor, core.NewCustomer{ID: c.ID, Name: "중복"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLedger_DebtorsReconcileDrift(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	owing := e.customer(t, "C200")
	settled := e.customer(t, "C201")
	dormant, err := e.ledger.CreateCustomer(ctx, testActor, core.NewCustomer{ID: "C202", Name: "휴면 고객", OpeningBalance: 9000})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), dormant.CurrentBalance)

	_, err = e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: owing.ID, TransactionType: core.LedgerSale, Amount: 12000,
	})
	require.NoError(t, err)
	_, err = e.pool.Exec(ctx, "UPDATE customers SET status = $1 WHERE customer_id = $2", core.CustomerDormant, dormant.ID)
	require.NoError(t, err)

	// Simulate drift from an out-of-band write.
	_, err = e.pool.Exec(ctx, "UPDATE customers SET current_balance = 777 WHERE customer_id IN ($1, $2)", owing.ID, settled.ID)
	require.NoError(t, err)

	debtors, err := e.ledger.GetCustomersWithDebt(ctx)
	require.NoError(t, err)
	require.Len(t, debtors, 1, "settled and dormant customers are not listed")
	assert.Equal(t, owing.ID, debtors[0].ID)
	assert.Equal(t, int64(12000), debtors[0].CurrentBalance)

	assert.Zero(t, e.balanceOf(t, settled.ID))
	e.requireConsistent(t)
}

func TestLedger_ReverseReferenceIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C300")

	_, err := e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerReceivable, Amount: 4000, ReferenceID: "S-REF00001",
	})
	require.NoError(t, err)
	_, err = e.ledger.CreateEntry(ctx, testActor, core.LedgerEntryInput{
		CustomerID: c.ID, TransactionType: core.LedgerPayment, Amount: 6000, ReferenceID: "S-REF00002",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		tx, err := e.pool.Begin(ctx)
		require.NoError(t, err)
		_, err = e.ledger.ReverseReferenceTx(ctx, tx, "S-REF00001", "취소")
		require.NoError(t, err)
		_, err = e.ledger.ReverseReferenceTx(ctx, tx, "S-REF00002", "취소")
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
	}
	assert.Zero(t, e.balanceOf(t, c.ID))
	e.requireConsistent(t)
}

func TestLedger_ReconcileRecordsSystemActor(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	c := e.customer(t, "C400")

	_, err := e.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS balance_writers (id SERIAL PRIMARY KEY, customer_id VARCHAR(32), actor TEXT);
		TRUNCATE balance_writers;
		CREATE OR REPLACE FUNCTION record_balance_writer() RETURNS TRIGGER AS $$
		BEGIN
			INSERT INTO balance_writers (customer_id, actor)
			VALUES (NEW.customer_id, NULLIF(current_setting('app.current_user', true), ''));
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;
		DROP TRIGGER IF EXISTS trg_balance_writer ON customers;
		CREATE TRIGGER trg_balance_writer AFTER UPDATE OF current_balance ON customers
			FOR EACH ROW EXECUTE FUNCTION record_balance_writer();`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = e.pool.Exec(context.Background(), `
			DROP TRIGGER IF EXISTS trg_balance_writer ON customers;
			DROP FUNCTION IF EXISTS record_balance_writer();
			DROP TABLE IF EXISTS balance_writers;`)
	})

	_, err = e.pool.Exec(ctx, "UPDATE customers SET current_balance = 500 WHERE customer_id = $1", c.ID)
	require.NoError(t, err)

	_, err = e.ledger.GetCustomersWithDebt(ctx)
	require.NoError(t, err)
	assert.Zero(t, e.balanceOf(t, c.ID))

	var actor *string
	err = e.pool.QueryRow(ctx,
		"SELECT actor FROM balance_writers WHERE customer_id = $1 ORDER BY id DESC LIMIT 1", c.ID).Scan(&actor)
	require.NoError(t, err)
	require.NotNil(t, actor, "reconcile must run with an actor set")
	assert.Equal(t, core.SystemActor, *actor)
}
