package inventory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/stockbook/stockbook/internal/ledger"
)

var balanceHeader = []any{"Code", "Name", "Category", "Group", "Threshold", "Balance", "Level"}

// BalancesWorkbook renders balances into an xlsx workbook with one sheet per
// item kind.
func BalancesWorkbook(lines []ledger.StockLine) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheets := map[ledger.ItemKind]string{ledger.KindRM: "RM", ledger.KindFG: "FG"}
	if err := f.SetSheetName(f.GetSheetName(0), sheets[ledger.KindRM]); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheets[ledger.KindFG]); err != nil {
		return nil, err
	}

	next := map[ledger.ItemKind]int{ledger.KindRM: 2, ledger.KindFG: 2}
	for _, sheet := range sheets {
		header := balanceHeader
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, err
		}
	}
	for _, line := range lines {
		sheet, ok := sheets[line.Item.Kind]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, next[line.Item.Kind])
		if err != nil {
			return nil, err
		}
		row := []any{line.Item.Code, line.Item.Name, line.Item.Category, line.Item.Group, line.Item.Threshold, line.Balance, string(line.Level)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
		next[line.Item.Kind]++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("inventory: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportBalances renders the current balances workbook.
func (s *Service) ExportBalances(ctx context.Context) ([]byte, error) {
	lines, err := s.Balances(ctx, ItemFilter{})
	if err != nil {
		return nil, err
	}
	return BalancesWorkbook(lines)
}
