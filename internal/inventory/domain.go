package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// Balance is the maintained on-hand quantity of one item.
type Balance struct {
	Item      ledger.ItemRef `json:"item"`
	Qty       int64          `json:"qty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ItemInput creates or edits an item.
type ItemInput struct {
	Kind      ledger.ItemKind `json:"kind" validate:"required,oneof=RM FG"`
	Code      string          `json:"code" validate:"required,max=32"`
	Name      string          `json:"name" validate:"required,max=120"`
	Category  string          `json:"category" validate:"max=64"`
	Group     string          `json:"group" validate:"max=64"`
	Threshold int64           `json:"threshold" validate:"gte=0"`
	QtyPerFG  float64         `json:"qty_per_fg" validate:"gte=0"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Kind  ledger.ItemKind
	Group string
	Query string
}

// MovementFilter narrows movement listings. From/To are inclusive ISO dates.
type MovementFilter struct {
	Item   *ledger.ItemRef
	Ref    *ledger.DocRef
	From   string
	To     string
	Limit  int
	Offset int
}

// MovementInput describes one movement to post.
type MovementInput struct {
	Item      ledger.ItemRef
	Direction ledger.Direction
	Qty       int64
	Date      string
	Remark    string
	Ref       *ledger.DocRef
}

// StockRequest is a plain stock-in or stock-out without a document.
type StockRequest struct {
	Kind   ledger.ItemKind `json:"kind" validate:"required,oneof=RM FG"`
	ItemID string          `json:"item_id" validate:"required"`
	Qty    int64           `json:"qty" validate:"gt=0"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Remark string          `json:"remark" validate:"max=500"`
}

// StockResult is returned by stock-in and stock-out.
type StockResult struct {
	Movement ledger.Movement `json:"movement"`
	Balance  int64           `json:"balance"`
}

// ReconcileDrift records a maintained balance that disagreed with the ledger.
type ReconcileDrift struct {
	Item     ledger.ItemRef `json:"item"`
	Stored   int64          `json:"stored"`
	Computed int64          `json:"computed"`
}

// ReconcileReport summarises one reconcile run.
type ReconcileReport struct {
	Checked  int              `json:"checked"`
	Repaired []ReconcileDrift `json:"repaired"`
}

var (
	// ErrInsufficientStock is returned when an OUT exceeds the balance on hand.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrValidation)
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory balance not found")
	// ErrItemNotFound indicates an unknown item id.
	ErrItemNotFound = fmt.Errorf("%w: item", shared.ErrNotFound)
)

// NormalizeCode trims and upper-cases an item or document code.
// A Caser is stateful, so one is built per call.
func NormalizeCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

func (in ItemInput) normalized() ItemInput {
	in.Code = NormalizeCode(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Group = strings.TrimSpace(in.Group)
	if in.Kind == ledger.KindFG {
		in.QtyPerFG = 0
	}
	return in
}
