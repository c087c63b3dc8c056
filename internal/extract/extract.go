package extract

import (
	"strings"

	"nouhin/internal"
	"nouhin/internal/normalize"
	"nouhin/internal/util"
)

// Meta identifies the file an extraction came from.
type Meta struct {
	SupplierID int
	FileName   string
}

// FromGrid extracts a canonical document from a 2D cell grid. With a
// template the mapped columns drive extraction; without one the header row
// is auto-detected. The engine never fails: structural problems surface as
// warnings on a possibly empty document, and acceptance of empty documents
// is the persistence boundary's concern.
func FromGrid(rows [][]string, meta Meta, tmpl *internal.FormatTemplate) internal.Document {
	doc := internal.Document{
		SupplierID:       meta.SupplierID,
		OriginalFileName: meta.FileName,
		SourceKind:       internal.FileSpreadsheet,
		Items:            []internal.LineItem{},
		Warnings:         []string{},
	}

	if row := findRow(rows, keywordDeliveryDate); row >= 0 {
		doc.DeliveryDate = normalize.Date(cellAt(rows[row], 1))
	}
	if row := findRow(rows, keywordSupplier); row >= 0 {
		if name := strings.TrimSpace(cellAt(rows[row], 1)); name != "" {
			doc.SupplierName = util.StringPtr(name)
		}
	}

	if tmpl != nil {
		extractGridWithTemplate(rows, tmpl, &doc)
	} else {
		autoDetectGrid(rows, &doc)
	}

	if len(doc.Items) == 0 {
		doc.Warnings = append(doc.Warnings, "no line items could be extracted")
	}

	if row := findRow(rows, keywordTotal); row >= 0 {
		doc.TotalAmount = normalize.Number(cellAt(rows[row], 1))
	} else {
		for _, item := range doc.Items {
			doc.TotalAmount += item.Amount
		}
	}

	return doc
}

func extractGridWithTemplate(rows [][]string, tmpl *internal.FormatTemplate, doc *internal.Document) {
	layout := tmpl.Layout
	if layout == nil || layout.HeaderRowIndex < 0 || layout.HeaderRowIndex >= len(rows) {
		doc.Warnings = append(doc.Warnings, "template header row is outside the sheet")
		return
	}
	if !hasRequiredMappings(tmpl.Mapping) {
		doc.Warnings = append(doc.Warnings, "template does not map product_code and product_name")
	}

	for i := layout.DataStartRowIndex; i < len(rows); i++ {
		fields := resolveGridRow(rows[i], tmpl.Mapping)

		code := strings.TrimSpace(fields[internal.FieldProductCode])
		name := strings.TrimSpace(fields[internal.FieldProductName])
		if code == "" || name == "" {
			if i == layout.DataStartRowIndex {
				doc.Warnings = append(doc.Warnings, "first data row is blank; check the data start row offset")
			}
			continue
		}

		doc.Items = append(doc.Items, buildItem(len(doc.Items)+1, code, name, fields))
	}
}

// resolveGridRow reads every mapped field out of one grid row. Unmapped and
// out-of-range cells resolve to "".
func resolveGridRow(row []string, mapping internal.ColumnMapping) map[string]string {
	fields := make(map[string]string, len(mapping))
	for field, ref := range mapping {
		idx, err := normalize.ColumnToIndex(ref.Column)
		if err != nil {
			fields[field] = ""
			continue
		}
		fields[field] = cellAt(row, idx)
	}
	return fields
}

// buildItem assembles one accepted line. Amount comes from the mapped cell
// when present and non-empty, otherwise quantity x unit price.
func buildItem(lineNumber int, code, name string, fields map[string]string) internal.LineItem {
	quantity := normalize.Number(fields[internal.FieldQuantity])
	unitPrice := normalize.Number(fields[internal.FieldUnitPrice])

	amount := quantity * unitPrice
	if raw := strings.TrimSpace(fields[internal.FieldAmount]); raw != "" {
		amount = normalize.Number(raw)
	}

	item := internal.LineItem{
		LineNumber:   lineNumber,
		DeliveryDate: normalize.Date(fields[internal.FieldDeliveryDate]),
		ProductCode:  code,
		ProductName:  name,
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		Amount:       amount,
	}
	if v := strings.TrimSpace(fields[internal.FieldDocumentNumber]); v != "" {
		item.DocumentNumber = util.StringPtr(v)
	}
	if v := strings.TrimSpace(fields[internal.FieldRemarks]); v != "" {
		item.Remarks = util.StringPtr(v)
	}
	return item
}

func hasRequiredMappings(mapping internal.ColumnMapping) bool {
	_, hasCode := mapping[internal.FieldProductCode]
	_, hasName := mapping[internal.FieldProductName]
	return hasCode && hasName
}

func findRow(rows [][]string, keyword string) int {
	for i, row := range rows {
		for _, cell := range row {
			if strings.Contains(cell, keyword) {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
