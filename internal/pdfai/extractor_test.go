package pdfai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nouhin/internal/config"
	"nouhin/internal/extract"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"items":[]}`, `{"items":[]}`},
		{"fenced", "```json\n{\"items\":[]}\n```", `{"items":[]}`},
		{"fenced no lang", "```\n{\"items\":[]}\n```", `{"items":[]}`},
		{"prose around", "Here you go: {\"items\":[]} done.", `{"items":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFence(tc.in); got != tc.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMapPayload(t *testing.T) {
	amount := 500.0
	p := payload{
		DeliveryDate: "2024年3月5日",
		Items: []payloadItem{
			{ProductCode: "A001", ProductName: "りんご", Quantity: 3, UnitPrice: 150},
			{ProductCode: "", ProductName: ""},
			{ProductCode: "", ProductName: "おまけ", Quantity: 1, UnitPrice: 50},
			{ProductCode: "B001", ProductName: "", Quantity: 1, UnitPrice: 80},
			{DeliveryDate: "2024/03/06", ProductCode: "A002", ProductName: "みかん", Quantity: 2, UnitPrice: 100, Amount: &amount},
		},
	}

	doc := mapPayload(p, extract.Meta{SupplierID: 7, FileName: "note.pdf"})

	if doc.DeliveryDate != "2024-03-05" {
		t.Errorf("DeliveryDate = %q, want 2024-03-05", doc.DeliveryDate)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(doc.Items))
	}
	if doc.Items[0].LineNumber != 1 || doc.Items[1].LineNumber != 2 {
		t.Errorf("line numbers = %d, %d; want 1, 2", doc.Items[0].LineNumber, doc.Items[1].LineNumber)
	}
	if doc.Items[0].DeliveryDate != "2024-03-05" {
		t.Errorf("expected first item to inherit the header date, got %q", doc.Items[0].DeliveryDate)
	}
	if doc.Items[1].DeliveryDate != "2024-03-06" {
		t.Errorf("expected own item date to win, got %q", doc.Items[1].DeliveryDate)
	}
	if doc.Items[0].Amount != 450 {
		t.Errorf("expected derived amount 450, got %v", doc.Items[0].Amount)
	}
	if doc.Items[1].Amount != 500 {
		t.Errorf("expected explicit amount 500, got %v", doc.Items[1].Amount)
	}
	if doc.TotalAmount != 950 {
		t.Errorf("expected summed total 950, got %v", doc.TotalAmount)
	}
}

func TestMapPayloadEmptyItems(t *testing.T) {
	doc := mapPayload(payload{DeliveryDate: "2024-03-05"}, extract.Meta{SupplierID: 1, FileName: "empty.pdf"})
	if len(doc.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(doc.Items))
	}
	if len(doc.Warnings) != 1 {
		t.Errorf("expected a warning about missing line items, got %v", doc.Warnings)
	}
}

func TestExtractPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("unexpected request shape: %+v", req)
		}

		reply := "```json\n" + `{
  "delivery_date": "2024-03-05",
  "total_amount": 650,
  "items": [
    {"product_code": "A001", "product_name": "りんご", "quantity": 3, "unit_price": 150}
  ]
}` + "\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": reply}}}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(config.Config{
		PDFAIAPIKey:    "test-key",
		PDFAIBaseURL:   server.URL,
		PDFAIModel:     "test-model",
		PDFAITimeoutMs: 5000,
	})

	doc, err := client.ExtractPDF(context.Background(), []byte("%PDF-1.4"), extract.Meta{SupplierID: 3, FileName: "note.pdf"})
	if err != nil {
		t.Fatalf("ExtractPDF: %v", err)
	}
	if doc.SupplierID != 3 || doc.TotalAmount != 650 || len(doc.Items) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestExtractPDFRequiresKey(t *testing.T) {
	client := NewClient(config.Config{PDFAITimeoutMs: 1000})
	_, err := client.ExtractPDF(context.Background(), []byte("%PDF"), extract.Meta{})
	if err == nil {
		t.Error("expected an error without an API key")
	}
}
