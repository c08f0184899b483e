package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockbook/stockbook/internal/ledger"
	"github.com/stockbook/stockbook/internal/shared"
)

// LineInput is one requested line of a document.
type LineInput struct {
	ItemID string `json:"item_id" validate:"required"`
	Qty    int64  `json:"qty" validate:"gt=0"`
	Remark string `json:"remark" validate:"max=500"`
}

// DocLine is a stored document line.
type DocLine struct {
	LineNo int    `json:"line_no"`
	ItemID string `json:"item_id"`
	Qty    int64  `json:"qty"`
	Remark string `json:"remark,omitempty"`
}

// DocLines numbers the inputs from 1.
func DocLines(inputs []LineInput) []DocLine {
	lines := make([]DocLine, 0, len(inputs))
	for i, in := range inputs {
		lines = append(lines, DocLine{LineNo: i + 1, ItemID: in.ItemID, Qty: in.Qty, Remark: strings.TrimSpace(in.Remark)})
	}
	return lines
}

// DocMovements maps document lines to one movement each, all with the same
// kind, direction, date and back-reference.
func DocMovements(lines []DocLine, kind ledger.ItemKind, dir ledger.Direction, date string, ref ledger.DocRef, fallbackRemark string) []MovementInput {
	inputs := make([]MovementInput, 0, len(lines))
	for _, line := range lines {
		remark := line.Remark
		if remark == "" {
			remark = fallbackRemark
		}
		docRef := ref
		inputs = append(inputs, MovementInput{
			Item:      ledger.ItemRef{Kind: kind, ItemID: line.ItemID},
			Direction: dir,
			Qty:       line.Qty,
			Date:      date,
			Remark:    remark,
			Ref:       &docRef,
		})
	}
	return inputs
}

// DocNumber builds a default document number such as GRN-20261019-3F9A1C.
func DocNumber(prefix, date, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, strings.ReplaceAll(date, "-", ""), strings.ToUpper(suffix))
}

// DocFilter narrows document listings. From/To are inclusive ISO dates.
type DocFilter struct {
	From   string
	To     string
	Limit  int
	Offset int
}

// Validate checks the date bounds.
func (f DocFilter) Validate() error {
	return ValidateDateRange(f.From, f.To)
}

// ValidateDateRange accepts empty bounds or YYYY-MM-DD dates with from <= to.
func ValidateDateRange(from, to string) error {
	bounds := [2]struct{ field, value string }{{"from", from}, {"to", to}}
	for _, b := range bounds {
		if b.value == "" {
			continue
		}
		if _, err := time.Parse(ledger.DateLayout, b.value); err != nil {
			return shared.FieldError(b.field, "must be a date in YYYY-MM-DD format")
		}
	}
	if from != "" && to != "" && from > to {
		return shared.FieldError("from", "must not be after to")
	}
	return nil
}
