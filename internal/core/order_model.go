package core

import "time"

// SaleStatus is the lifecycle state of a sale:
//
//	접수 → 입금완료 | 취소
//	접수 | 입금완료 → 배송중 (CompleteShipment) → 배송완료
//	any → 취소 | 반품완료 | 교환완료 (claim completion)
type SaleStatus string

const (
	SaleReceived  SaleStatus = "접수"
	SalePaid      SaleStatus = "입금완료"
	SaleShipping  SaleStatus = "배송중"
	SaleDelivered SaleStatus = "배송완료"
	SaleCancelled SaleStatus = "취소"
	SaleReturned  SaleStatus = "반품완료"
	SaleExchanged SaleStatus = "교환완료"
)

func (s SaleStatus) IsValid() bool {
	switch s {
	case SaleReceived, SalePaid, SaleShipping, SaleDelivered, SaleCancelled, SaleReturned, SaleExchanged:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle transitions are expected.
func (s SaleStatus) IsTerminal() bool {
	switch s {
	case SaleDelivered, SaleCancelled, SaleReturned, SaleExchanged:
		return true
	}
	return false
}

// Sale is one order line with its resolved product and tax decomposition.
type Sale struct {
	ID                     string     `json:"sales_id"`
	CustomerID             *string    `json:"customer_id,omitempty"`
	ProductID              *int       `json:"product_id,omitempty"`
	ProductName            string     `json:"product_name"`
	Specification          *string    `json:"specification,omitempty"`
	UnitPrice              int64      `json:"unit_price"`
	Quantity               int        `json:"quantity"`
	TotalAmount            int64      `json:"total_amount"`
	DiscountRate           int        `json:"discount_rate"`
	SupplyValue            int64      `json:"supply_value"`
	VATAmount              int64      `json:"vat_amount"`
	TaxExemptValue         int64      `json:"tax_exempt_value"`
	TaxType                TaxType    `json:"tax_type"`
	Status                 SaleStatus `json:"status"`
	OrderDate              string     `json:"order_date"` // YYYY-MM-DD
	Memo                   *string    `json:"memo,omitempty"`
	ShippingName           *string    `json:"shipping_name,omitempty"`
	ShippingZipCode        *string    `json:"shipping_zip_code,omitempty"`
	ShippingAddressPrimary *string    `json:"shipping_address_primary,omitempty"`
	ShippingAddressDetail  *string    `json:"shipping_address_detail,omitempty"`
	ShippingMobileNumber   *string    `json:"shipping_mobile_number,omitempty"`
	ShippingDate           *string    `json:"shipping_date,omitempty"`
	CourierName            *string    `json:"courier_name,omitempty"`
	TrackingNumber         *string    `json:"tracking_number,omitempty"`
	PaymentStatus          *string    `json:"payment_status,omitempty"`
	PaidAmount             int64      `json:"paid_amount"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// SaleInput is the full field set accepted by CreateSale and UpdateSale.
// Tax fields and the product id are always derived, never taken from input.
type SaleInput struct {
	CustomerID             *string
	ProductName            string
	Specification          *string
	Quantity               int
	UnitPrice              int64
	TotalAmount            int64
	DiscountRate           int
	OrderDate              string // YYYY-MM-DD or YYYYMMDD
	Status                 SaleStatus
	Memo                   *string
	ShippingName           *string
	ShippingZipCode        *string
	ShippingAddressPrimary *string
	ShippingAddressDetail  *string
	ShippingMobileNumber   *string
	ShippingDate           *string
	PaymentStatus          *string
	PaidAmount             int64
}

// ShipmentInput carries the carrier details recorded by CompleteShipment.
type ShipmentInput struct {
	Memo           *string
	CourierName    *string
	TrackingNumber *string
	ShippingDate   string // defaults to today
}

// ClaimType is the kind of after-sale claim.
type ClaimType string

const (
	ClaimCancel   ClaimType = "취소"
	ClaimReturn   ClaimType = "반품"
	ClaimExchange ClaimType = "교환"
)

func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimCancel, ClaimReturn, ClaimExchange:
		return true
	}
	return false
}

// CompletedSaleStatus is the sale status a completed claim of this type produces.
func (t ClaimType) CompletedSaleStatus() SaleStatus {
	switch t {
	case ClaimCancel:
		return SaleCancelled
	case ClaimReturn:
		return SaleReturned
	case ClaimExchange:
		return SaleExchanged
	}
	return SaleDelivered
}

// RecoversStock reports whether recovered goods of this claim type go back on the shelf.
// Exchanges ship a replacement, so they never change net stock.
func (t ClaimType) RecoversStock() bool {
	return t == ClaimCancel || t == ClaimReturn
}

// ClaimStatus is the processing state of a claim.
type ClaimStatus string

const (
	ClaimReceived   ClaimStatus = "접수"
	ClaimInProgress ClaimStatus = "처리중"
	ClaimCompleted  ClaimStatus = "완료"
	ClaimRejected   ClaimStatus = "거부"
)

func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimReceived, ClaimInProgress, ClaimCompleted, ClaimRejected:
		return true
	}
	return false
}

// SalesClaim is a cancel/return/exchange request against a sale.
type SalesClaim struct {
	ID                   int         `json:"claim_id"`
	SalesID              string      `json:"sales_id"`
	CustomerID           *string     `json:"customer_id,omitempty"`
	ClaimType            ClaimType   `json:"claim_type"`
	ClaimStatus          ClaimStatus `json:"claim_status"`
	ReasonCategory       string      `json:"reason_category"`
	Quantity             int         `json:"quantity"`
	RefundAmount         int64       `json:"refund_amount"`
	IsInventoryRecovered bool        `json:"is_inventory_recovered"`
	StockRecovered       bool        `json:"stock_recovered"` // goods already put back; never reset
	Memo                 string      `json:"memo"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// ClaimInput is accepted by CreateClaim and UpdateClaim.
// A zero Quantity means the whole sale.
type ClaimInput struct {
	SalesID        string
	CustomerID     *string
	ClaimType      ClaimType
	ReasonCategory string
	Quantity       int
	Memo           string
}

// ClaimResolution is the outcome recorded by ProcessClaim.
type ClaimResolution struct {
	Status               ClaimStatus
	IsInventoryRecovered bool
	RefundAmount         int64
}
