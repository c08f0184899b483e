package delivery

import (
	"time"

	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/ledger"
)

// Note is a delivery note: finished goods shipped to a customer.
type Note struct {
	ID        string              `json:"id"`
	Number    string              `json:"number"`
	Customer  string              `json:"customer"`
	Address   string              `json:"address,omitempty"`
	Date      string              `json:"date"`
	Remark    string              `json:"remark,omitempty"`
	Lines     []inventory.DocLine `json:"lines"`
	CreatedAt time.Time           `json:"created_at"`
	CreatedBy string              `json:"created_by"`
}

// Issued is a note together with the movements it produced.
type Issued struct {
	Note      Note              `json:"note"`
	Movements []ledger.Movement `json:"movements"`
}

// CreateNoteInput describes delivery note creation.
type CreateNoteInput struct {
	Number   string                `json:"number" validate:"max=40"`
	Customer string                `json:"customer" validate:"required,max=120"`
	Address  string                `json:"address" validate:"max=500"`
	Date     string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remark   string                `json:"remark" validate:"max=500"`
	Lines    []inventory.LineInput `json:"lines" validate:"required,min=1,dive"`
}

// NoteFilter narrows delivery note listings.
type NoteFilter struct {
	inventory.DocFilter
	Customer string
}
