package app

import "farm-ledger/internal/core"

// SaleResult is returned by sale lifecycle operations.
type SaleResult struct {
	Sale *core.Sale
}

// DebtorReport is returned by GetCustomersWithDebt.
type DebtorReport struct {
	Customers        []core.Customer
	TotalOutstanding int64
}

// CustomerLedgerResult is returned by GetCustomerLedger.
type CustomerLedgerResult struct {
	Customer *core.Customer
	Entries  []core.LedgerEntry
}

// InventoryLogResult is returned by GetInventoryLogs.
type InventoryLogResult struct {
	Logs []core.InventoryLog
}

// StockVerification is returned by VerifyStock. Consistent is true when no product drifted.
type StockVerification struct {
	Drifts     []core.StockDrift
	Consistent bool
}
