// Package production records finished goods coming off the line.
package production

import (
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
)

// Run is one production record. Only finished goods are credited; raw
// material consumption is not derived from qty_per_fg.
type Run struct {
	ID        string              `json:"id"`
	Number    string              `json:"number"`
	Date      string              `json:"date"`
	Remark    string              `json:"remark,omitempty"`
	Lines     []inventory.DocLine `json:"lines"`
	CreatedAt time.Time           `json:"created_at"`
	CreatedBy string              `json:"created_by"`
}

// Recorded is a run with the movements it produced.
type Recorded struct {
	Run       Run               `json:"run"`
	Movements []ledger.Movement `json:"movements"`
}

// CreateRunInput describes a production record.
type CreateRunInput struct {
	Number string                `json:"number" validate:"max=40"`
	Date   string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remark string                `json:"remark" validate:"max=500"`
	Lines  []inventory.LineInput `json:"lines" validate:"required,min=1,dive"`
}
