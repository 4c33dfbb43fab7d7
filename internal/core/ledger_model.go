package core

import "time"

// LedgerType is the transaction type of a customer ledger entry.
type LedgerType string

const (
	LedgerPayment    LedgerType = "입금"
	LedgerCarryOver  LedgerType = "이월"
	LedgerSale       LedgerType = "매출"
	LedgerReceivable LedgerType = "매출(미수)"
	LedgerReturn     LedgerType = "반품"
	LedgerSaleCancel LedgerType = "매출취소"
	LedgerAdjustment LedgerType = "조정"
)

func (t LedgerType) IsValid() bool {
	switch t {
	case LedgerPayment, LedgerCarryOver, LedgerSale, LedgerReceivable,
		LedgerReturn, LedgerSaleCancel, LedgerAdjustment:
		return true
	}
	return false
}

// Normalize returns the amount as it is stored for this type: payments and returns
// always reduce the balance, sales and carry-overs always raise it, and adjustments
// keep the caller's sign.
func (t LedgerType) Normalize(amount int64) int64 {
	switch t {
	case LedgerPayment, LedgerReturn, LedgerSaleCancel:
		return -abs64(amount)
	case LedgerCarryOver, LedgerSale, LedgerReceivable:
		return abs64(amount)
	default:
		return amount
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// CustomerStatus values.
const (
	CustomerActive  = "정상"
	CustomerDormant = "휴면"
	CustomerClosed  = "말소"
)

// Customer holds the receivable balance, which always equals the sum of the customer's ledger amounts.
type Customer struct {
	ID             string    `json:"customer_id"`
	Name           string    `json:"customer_name"`
	MobileNumber   *string   `json:"mobile_number,omitempty"`
	Status         string    `json:"status"`
	CurrentBalance int64     `json:"current_balance"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is one customer ledger row. RunningBalance is only filled by GetEntries.
type LedgerEntry struct {
	ID              int64      `json:"ledger_id"`
	CustomerID      string     `json:"customer_id"`
	TransactionDate string     `json:"transaction_date"` // YYYY-MM-DD
	TransactionType LedgerType `json:"transaction_type"`
	Amount          int64      `json:"amount"`
	Description     string     `json:"description,omitempty"`
	ReferenceID     string     `json:"reference_id,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	RunningBalance  int64      `json:"running_balance"`
}

// LedgerEntryInput is accepted by the ledger write operations. Amount is normalized by type.
type LedgerEntryInput struct {
	CustomerID      string
	TransactionDate string // YYYY-MM-DD; empty means today
	TransactionType LedgerType
	Amount          int64
	Description     string
	ReferenceID     string
}

// NewCustomer is the input for CustomerLedger.CreateCustomer. The balance starts at zero;
// an opening balance is booked as an 이월 entry.
type NewCustomer struct {
	ID             string
	Name           string
	MobileNumber   *string
	OpeningBalance int64
}
