package procurement

import (
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
)

// Bill is a goods received note: raw materials delivered by a supplier.
type Bill struct {
	ID         string              `json:"id"`
	Number     string              `json:"number"`
	SupplierID string              `json:"supplier_id"`
	Date       string              `json:"date"`
	Remark     string              `json:"remark,omitempty"`
	Lines      []inventory.DocLine `json:"lines"`
	CreatedAt  time.Time           `json:"created_at"`
	CreatedBy  string              `json:"created_by"`
}

// GRN is a bill together with the movements it produced.
type GRN struct {
	Bill      Bill              `json:"bill"`
	Movements []ledger.Movement `json:"movements"`
}

// CreateGRNInput describes GRN creation.
type CreateGRNInput struct {
	Number     string                `json:"number" validate:"max=40"`
	SupplierID string                `json:"supplier_id" validate:"required"`
	Date       string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remark     string                `json:"remark" validate:"max=500"`
	Lines      []inventory.LineInput `json:"lines" validate:"required,min=1,dive"`
}

// BillFilter narrows bill listings.
type BillFilter struct {
	inventory.DocFilter
	SupplierID string
}
