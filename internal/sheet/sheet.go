// Package sheet reads flat lot rows from and writes stored lots to xlsx
// workbooks.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jacentio/lottrace/lot"
)

// Column names, matched case-insensitively on import.
const (
	ColLotID        = "lotId"
	ColLot          = "lot"
	ColParentLotID  = "parentLotId"
	ColParentLot    = "parentLot"
	ColItemCode     = "itemCode"
	ColAmount       = "amount"
	ColPer          = "per"
	ColType         = "type"
	ColExternalLot  = "externalLot"
	ColExternalCode = "externalCode"
	ColItemName     = "itemName"
)

// ErrNoHeader is returned when a workbook has no header naming the lot column.
var ErrNoHeader = errors.New("lottrace: sheet has no lot header")

var exportHeader = []any{
	ColLotID,
	ColLot,
	ColParentLotID,
	ColItemCode,
	ColAmount,
	ColPer,
	ColType,
	ColExternalLot,
	ColExternalCode,
	ColItemName,
}

// ReadInputs reads the first sheet of an xlsx workbook. The first row names
// the columns in any order; unknown columns are ignored and blank rows are
// skipped.
func ReadInputs(r io.Reader) ([]lot.Input, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	cols := make(map[string]int)
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols[strings.ToLower(ColLot)]; !ok {
		return nil, ErrNoHeader
	}

	inputs := []lot.Input{}
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cell := func(name string) string {
			i, ok := cols[strings.ToLower(name)]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		var amount uint64
		if s := cell(ColAmount); s != "" {
			amount, err = strconv.ParseUint(s, 10, 64)
			if err != nil {
				// Header is row 1, data starts at row 2.
				return nil, fmt.Errorf("row %d: amount %q: %w", n+2, s, err)
			}
		}

		inputs = append(inputs, lot.Input{
			Lot:          cell(ColLot),
			ParentLot:    cell(ColParentLot),
			ItemCode:     cell(ColItemCode),
			Amount:       amount,
			Per:          cell(ColPer),
			Type:         cell(ColType),
			ExternalLot:  cell(ColExternalLot),
			ExternalCode: cell(ColExternalCode),
			ItemName:     cell(ColItemName),
		})
	}
	return inputs, nil
}

// WriteRecords writes recs as one sheet: a header row, then one row per
// record in order.
func WriteRecords(w io.Writer, recs []lot.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	header := exportHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range recs {
		parent := ""
		if !rec.IsRoot() {
			parent = rec.ParentID.String()
		}
		row := []any{
			rec.ID.String(),
			rec.Lot,
			parent,
			rec.ItemCode,
			rec.Amount,
			rec.Per,
			rec.ItemType,
			rec.ExternalLot,
			rec.ExternalCode,
			rec.ItemName,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
