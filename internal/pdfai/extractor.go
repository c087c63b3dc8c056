package pdfai

import (
	"context"
	"strings"

	"nouhin/internal"
	"nouhin/internal/extract"
	"nouhin/internal/normalize"
)

// Extractor pulls structured delivery data out of a PDF. PDF layouts vary
// too much for positional templates, so the implementation delegates to a
// document-understanding model.
type Extractor interface {
	ExtractPDF(ctx context.Context, content []byte, meta extract.Meta) (internal.Document, error)
}

type payloadItem struct {
	DeliveryDate   string   `json:"delivery_date"`
	DocumentNumber *string  `json:"document_number"`
	ProductCode    string   `json:"product_code"`
	ProductName    string   `json:"product_name"`
	Quantity       float64  `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	Amount         *float64 `json:"amount"`
	Remarks        *string  `json:"remarks"`
}

type payload struct {
	DeliveryDate string        `json:"delivery_date"`
	TotalAmount  *float64      `json:"total_amount"`
	Items        []payloadItem `json:"items"`
}

// stripCodeFence unwraps the JSON object from a model reply that may be
// wrapped in a markdown code fence or surrounded by prose.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		return strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// mapPayload converts a model reply into a document. Items missing a
// product code or a product name are dropped; line numbers count accepted
// items only, and an item without its own date inherits the header date.
func mapPayload(p payload, meta extract.Meta) internal.Document {
	doc := internal.Document{
		SupplierID:       meta.SupplierID,
		OriginalFileName: meta.FileName,
		SourceKind:       internal.FilePDF,
		DeliveryDate:     normalize.Date(p.DeliveryDate),
	}

	for _, raw := range p.Items {
		code := strings.TrimSpace(raw.ProductCode)
		name := strings.TrimSpace(raw.ProductName)
		if code == "" || name == "" {
			continue
		}

		item := internal.LineItem{
			LineNumber:     len(doc.Items) + 1,
			DeliveryDate:   normalize.Date(raw.DeliveryDate),
			DocumentNumber: raw.DocumentNumber,
			ProductCode:    code,
			ProductName:    name,
			Quantity:       raw.Quantity,
			UnitPrice:      raw.UnitPrice,
			Remarks:        raw.Remarks,
		}
		if item.DeliveryDate == "" {
			item.DeliveryDate = doc.DeliveryDate
		}
		if raw.Amount != nil {
			item.Amount = *raw.Amount
		} else {
			item.Amount = raw.Quantity * raw.UnitPrice
		}
		doc.Items = append(doc.Items, item)
	}

	if len(doc.Items) == 0 {
		doc.Warnings = append(doc.Warnings, "no line items could be extracted")
	}

	if p.TotalAmount != nil {
		doc.TotalAmount = *p.TotalAmount
	} else {
		for _, item := range doc.Items {
			doc.TotalAmount += item.Amount
		}
	}

	return doc
}
