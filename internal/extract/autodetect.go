package extract

import (
	"strings"

	"nouhin/internal"
	"nouhin/internal/normalize"
	"nouhin/internal/util"
)

// Header keywords seen across supplier layouts.
const (
	keywordProductCode  = "商品コード"
	keywordDeliveryDate = "納品日"
	keywordSupplier     = "仕入先"
	keywordTotal        = "合計"
)

var (
	documentNumberKeywords = []string{"納品書", "伝票"}
	remarksKeywords        = []string{"備考", "Remarks"}
	dateKeywords           = []string{"納品日", "date"}
)

// headerDetector locates the header row of an unmapped sheet. Detectors run
// in order; the first that reports ok wins.
type headerDetector struct {
	name   string
	locate func(rows [][]string) (int, bool)
}

var headerDetectors = []headerDetector{
	{
		name: "product-code-keyword",
		locate: func(rows [][]string) (int, bool) {
			if i := findRow(rows, keywordProductCode); i >= 0 {
				return i, true
			}
			return 0, false
		},
	},
	{
		name: "english-header",
		locate: func(rows [][]string) (int, bool) {
			for i, row := range rows {
				for _, cell := range row {
					lower := strings.ToLower(strings.TrimSpace(cell))
					if lower == "product_code" || lower == "product code" || lower == "code" {
						return i, true
					}
				}
			}
			return 0, false
		},
	},
}

// autoDetectGrid is the no-template fallback: find the header row by
// keyword, fix the leading column order (code, name, quantity, unit price,
// amount), and walk the contiguous data block below it. Unlike the template
// path it stops at the first row with a blank code or name; an unmapped
// sheet gives no grounds to treat blanks as skippable noise.
func autoDetectGrid(rows [][]string, doc *internal.Document) {
	headerRow := -1
	for _, detector := range headerDetectors {
		if i, ok := detector.locate(rows); ok {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		doc.Warnings = append(doc.Warnings, "could not locate a product code header row")
		return
	}

	header := rows[headerRow]
	documentNumberCol := findColumn(header, documentNumberKeywords)
	remarksCol := findColumn(header, remarksKeywords)
	dateCol := findColumn(header, dateKeywords)

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		code := strings.TrimSpace(cellAt(row, 0))
		name := strings.TrimSpace(cellAt(row, 1))
		if code == "" || name == "" {
			break
		}

		quantity := normalize.Number(cellAt(row, 2))
		unitPrice := normalize.Number(cellAt(row, 3))
		amount := quantity * unitPrice
		if raw := strings.TrimSpace(cellAt(row, 4)); raw != "" {
			amount = normalize.Number(raw)
		}

		item := internal.LineItem{
			LineNumber:  len(doc.Items) + 1,
			ProductCode: code,
			ProductName: name,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			Amount:      amount,
		}
		if dateCol >= 0 {
			item.DeliveryDate = normalize.Date(cellAt(row, dateCol))
		}
		if documentNumberCol >= 0 {
			if v := strings.TrimSpace(cellAt(row, documentNumberCol)); v != "" {
				item.DocumentNumber = util.StringPtr(v)
			}
		}
		if remarksCol >= 0 {
			if v := strings.TrimSpace(cellAt(row, remarksCol)); v != "" {
				item.Remarks = util.StringPtr(v)
			}
		}
		doc.Items = append(doc.Items, item)
	}
}

func findColumn(header []string, keywords []string) int {
	for i, cell := range header {
		for _, kw := range keywords {
			if strings.Contains(cell, kw) || strings.Contains(strings.ToLower(cell), strings.ToLower(kw)) {
				return i
			}
		}
	}
	return -1
}
