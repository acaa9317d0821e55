package export

import (
	"bytes"
	"fmt"

	"costseg/internal/model"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// BuildDepreciationWorkbook renders the asset schedule as an xlsx: one sheet
// per depreciation category plus a summary. percents is keyed by asset id
// and carries the derived percentage-of-total values.
func BuildDepreciationWorkbook(study *model.Study, percents map[string]int) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})

	categories := []string{model.CategoryFiveYear, model.CategoryFifteenYear, model.CategoryTwentySevenFive}
	byCategory := make(map[string][]model.Asset)
	for _, a := range study.Assets {
		byCategory[a.Category] = append(byCategory[a.Category], a)
	}

	summary := "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}

	grandTotal := decimal.Zero
	for _, a := range study.Assets {
		grandTotal = grandTotal.Add(a.EstimatedValue)
	}

	row := 1
	setRow := func(sheet string, r int, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := setRow(summary, row, []interface{}{"Study", study.Name}); err != nil {
		return nil, err
	}
	row++
	if err := setRow(summary, row, []interface{}{"Address", study.Address}); err != nil {
		return nil, err
	}
	row++
	if err := setRow(summary, row, []interface{}{"Total estimated value", grandTotal.StringFixed(2)}); err != nil {
		return nil, err
	}
	row += 2
	if err := setRow(summary, row, []interface{}{"Category", "Assets", "Estimated value"}); err != nil {
		return nil, err
	}
	start, _ := excelize.CoordinatesToCellName(1, row)
	end, _ := excelize.CoordinatesToCellName(3, row)
	_ = f.SetCellStyle(summary, start, end, headerStyle)
	row++

	for _, category := range categories {
		assets := byCategory[category]
		total := decimal.Zero
		for _, a := range assets {
			total = total.Add(a.EstimatedValue)
		}
		if err := setRow(summary, row, []interface{}{category, len(assets), total.StringFixed(2)}); err != nil {
			return nil, err
		}
		row++

		sheet := sanitizeSheetName(category)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := setRow(sheet, 1, []interface{}{"Name", "Description", "Estimated value", "Depreciation (years)", "% of total", "Verified"}); err != nil {
			return nil, err
		}
		hs, _ := excelize.CoordinatesToCellName(1, 1)
		he, _ := excelize.CoordinatesToCellName(6, 1)
		_ = f.SetCellStyle(sheet, hs, he, headerStyle)

		for i, a := range assets {
			if err := setRow(sheet, i+2, []interface{}{
				a.Name,
				a.Description,
				a.EstimatedValue.StringFixed(2),
				a.DepreciationPeriod,
				fmt.Sprintf("%d%%", percents[a.ID]),
				a.Verified,
			}); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeSheetName keeps sheet names inside excel's character rules.
func sanitizeSheetName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) > 31 {
		out = out[:31]
	}
	return string(out)
}
