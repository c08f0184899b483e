package ledger

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO date format used for movement and document dates.
const DateLayout = "2006-01-02"

// ItemKind discriminates raw materials from finished goods.
type ItemKind string

const (
	// KindRM marks a raw material.
	KindRM ItemKind = "RM"
	// KindFG marks a finished good.
	KindFG ItemKind = "FG"
)

// Valid reports whether the kind is known.
func (k ItemKind) Valid() bool {
	return k == KindRM || k == KindFG
}

// ItemRef points a movement at exactly one item of one class.
type ItemRef struct {
	Kind   ItemKind `json:"kind"`
	ItemID string   `json:"item_id"`
}

// RM builds a raw material reference.
func RM(id string) ItemRef { return ItemRef{Kind: KindRM, ItemID: id} }

// FG builds a finished good reference.
func FG(id string) ItemRef { return ItemRef{Kind: KindFG, ItemID: id} }

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ItemID)
}

// Direction is the sign of a movement.
type Direction string

const (
	// In adds to the balance.
	In Direction = "IN"
	// Out subtracts from the balance.
	Out Direction = "OUT"
)

// Valid reports whether the direction is known.
func (d Direction) Valid() bool {
	return d == In || d == Out
}

// Sign returns +1 for IN, -1 for OUT and 0 otherwise.
func (d Direction) Sign() int64 {
	switch d {
	case In:
		return 1
	case Out:
		return -1
	default:
		return 0
	}
}

// DocKind names the document that produced a movement.
type DocKind string

const (
	DocBill       DocKind = "BILL"
	DocDelivery   DocKind = "DN"
	DocProduction DocKind = "PRODUCTION"
)

// DocRef links a movement back to its originating document.
type DocRef struct {
	Kind DocKind `json:"kind"`
	ID   string  `json:"id"`
}

// Movement is one immutable quantity change against one item.
// Qty is always positive; Direction carries the sign.
type Movement struct {
	ID        string    `json:"id"`
	Item      ItemRef   `json:"item"`
	Direction Direction `json:"direction"`
	Qty       int64     `json:"qty"`
	Date      string    `json:"date"`
	Remark    string    `json:"remark,omitempty"`
	Ref       *DocRef   `json:"ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// Signed returns the quantity with the direction applied.
func (m Movement) Signed() int64 {
	return m.Direction.Sign() * m.Qty
}

// Validate checks the structural invariants of a movement.
func (m Movement) Validate() error {
	if m.Item.ItemID == "" || !m.Item.Kind.Valid() {
		return ErrInvalidItem
	}
	if !m.Direction.Valid() {
		return ErrInvalidDirection
	}
	if m.Qty <= 0 {
		return ErrInvalidQuantity
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, m.Date)
	}
	return nil
}

// Item is a stocked raw material or finished good.
type Item struct {
	ID        string    `json:"id"`
	Kind      ItemKind  `json:"kind"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Group     string    `json:"group,omitempty"`
	Threshold int64     `json:"threshold"`
	QtyPerFG  float64   `json:"qty_per_fg,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref returns the ledger reference of the item.
func (i Item) Ref() ItemRef {
	return ItemRef{Kind: i.Kind, ItemID: i.ID}
}

// DocDate is the issue date of one document, used for "issued today" counts.
type DocDate struct {
	Kind DocKind
	Date string
}

var (
	// ErrInvalidItem indicates a missing or malformed item reference.
	ErrInvalidItem = errors.New("ledger: invalid item reference")
	// ErrInvalidDirection indicates a direction other than IN/OUT.
	ErrInvalidDirection = errors.New("ledger: invalid direction")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInvalidDate indicates a date not in ISO format.
	ErrInvalidDate = errors.New("ledger: invalid date")
)
