package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"nouhin/internal"
)

// Supplier CSVs arrive in inconsistent legacy encodings with no declared
// charset, so decoding tries a fixed priority list.
var textEncodings = []struct {
	name    string
	decoder func() *encoding.Decoder
}{
	{name: "utf-8", decoder: nil},
	{name: "shift_jis", decoder: japanese.ShiftJIS.NewDecoder},
	{name: "euc-jp", decoder: japanese.EUCJP.NewDecoder},
	{name: "iso-2022-jp", decoder: japanese.ISO2022JP.NewDecoder},
}

// DecodeText decodes raw bytes with the first encoding that decodes cleanly
// and yields a low proportion of control characters. When every strict
// attempt fails it falls back to a lenient UTF-8 read.
func DecodeText(raw []byte) string {
	for _, enc := range textEncodings {
		var text string
		if enc.decoder == nil {
			if !utf8.Valid(raw) {
				continue
			}
			text = string(raw)
		} else {
			decoded, _, err := transform.String(enc.decoder(), string(raw))
			if err != nil || strings.ContainsRune(decoded, utf8.RuneError) {
				continue
			}
			text = decoded
		}

		text = strings.TrimPrefix(text, "\uFEFF")
		if controlCharRatio(text) >= 0.1 {
			continue
		}
		return text
	}

	return strings.TrimPrefix(string(raw), "\uFEFF")
}

func controlCharRatio(text string) float64 {
	if text == "" {
		return 0
	}
	control := 0
	total := 0
	for _, r := range text {
		total++
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			control++
		}
	}
	return float64(control) / float64(total)
}

// ParseDelimited parses header-keyed CSV text into one field map per record.
func ParseDelimited(text string) ([]map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		record := make(map[string]string, len(header))
		empty := true
		for i, name := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if strings.TrimSpace(value) != "" {
				empty = false
			}
			record[name] = value
		}
		if empty {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Header aliases for the no-template delimited path, matched case-exactly
// in declaration order.
var fieldAliases = map[string][]string{
	internal.FieldProductCode:    {"商品コード", "product_code", "code"},
	internal.FieldProductName:    {"商品名", "product_name", "name"},
	internal.FieldQuantity:       {"数量", "quantity"},
	internal.FieldUnitPrice:      {"単価", "unit_price"},
	internal.FieldAmount:         {"金額", "amount"},
	internal.FieldDeliveryDate:   {"納品日", "delivery_date", "納品日付", "date"},
	internal.FieldDocumentNumber: {"納品書番号", "delivery_note_number", "伝票番号"},
	internal.FieldRemarks:        {"備考", "remarks", "備考欄"},
}

// FromRecords extracts a canonical document from header-keyed records,
// template-driven when a template is supplied and alias-driven otherwise.
// Records with a blank product code or name are skipped; delimited records
// have no trailing-sheet concept, so there is no block termination.
func FromRecords(records []map[string]string, meta Meta, tmpl *internal.FormatTemplate) internal.Document {
	doc := internal.Document{
		SupplierID:       meta.SupplierID,
		OriginalFileName: meta.FileName,
		SourceKind:       internal.FileDelimited,
		Items:            []internal.LineItem{},
		Warnings:         []string{},
	}

	if tmpl != nil && !hasRequiredMappings(tmpl.Mapping) {
		doc.Warnings = append(doc.Warnings, "template does not map product_code and product_name")
	}

	for _, record := range records {
		var fields map[string]string
		if tmpl != nil {
			fields = resolveRecord(record, tmpl.Mapping)
		} else {
			fields = resolveRecordByAlias(record)
		}

		code := strings.TrimSpace(fields[internal.FieldProductCode])
		name := strings.TrimSpace(fields[internal.FieldProductName])
		if code == "" || name == "" {
			continue
		}

		doc.Items = append(doc.Items, buildItem(len(doc.Items)+1, code, name, fields))
	}

	if len(doc.Items) == 0 {
		doc.Warnings = append(doc.Warnings, "no line items could be extracted")
	}
	for _, item := range doc.Items {
		doc.TotalAmount += item.Amount
	}

	return doc
}

func resolveRecord(record map[string]string, mapping internal.ColumnMapping) map[string]string {
	fields := make(map[string]string, len(mapping))
	for field, ref := range mapping {
		fields[field] = record[ref.Column]
	}
	return fields
}

func resolveRecordByAlias(record map[string]string) map[string]string {
	fields := make(map[string]string, len(fieldAliases))
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if value, ok := record[alias]; ok && strings.TrimSpace(value) != "" {
				fields[field] = value
				break
			}
		}
	}
	return fields
}
