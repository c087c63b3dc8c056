package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nouhin/internal"
	"nouhin/internal/pos"
	"nouhin/internal/storage"
)

// Service persists extracted documents into the delivery ledger and keeps
// the POS mirror informed about codes it has not seen before.
type Service struct {
	db      *storage.DB
	posSync *pos.SyncService
}

// NewService builds a ledger service. posSync may be nil when the POS
// integration is not configured.
func NewService(db *storage.DB, posSync *pos.SyncService) *Service {
	return &Service{db: db, posSync: posSync}
}

// ValidateDocument rejects documents the ledger must not accept: a missing
// supplier, no line items at all, or an item missing its product code or
// product name.
func ValidateDocument(doc internal.Document) error {
	if doc.SupplierID <= 0 {
		return fmt.Errorf("document has no supplier")
	}
	if len(doc.Items) == 0 {
		return fmt.Errorf("no line items were extracted (extracted item count: %d)", len(doc.Items))
	}
	for _, item := range doc.Items {
		if strings.TrimSpace(item.ProductCode) == "" {
			return fmt.Errorf("line %d has no product code", item.LineNumber)
		}
		if strings.TrimSpace(item.ProductName) == "" {
			return fmt.Errorf("line %d has no product name", item.LineNumber)
		}
	}
	return nil
}

// resolveHeaderDate picks the delivery date for the note header: the first
// dated line item, else the document's own date, else today.
func resolveHeaderDate(doc internal.Document, now func() time.Time) string {
	for _, item := range doc.Items {
		if item.DeliveryDate != "" {
			return item.DeliveryDate
		}
	}
	if doc.DeliveryDate != "" {
		return doc.DeliveryDate
	}
	return now().Format("2006-01-02")
}

// Save validates and stores a document. Items missing their own delivery
// date inherit the resolved header date. A POS sync failure after the save
// is logged and swallowed; the ledger write has already succeeded.
func (s *Service) Save(ctx context.Context, doc internal.Document) (int64, error) {
	if err := ValidateDocument(doc); err != nil {
		return 0, err
	}

	doc.DeliveryDate = resolveHeaderDate(doc, time.Now)
	for i := range doc.Items {
		if doc.Items[i].DeliveryDate == "" {
			doc.Items[i].DeliveryDate = doc.DeliveryDate
		}
	}

	noteID, err := s.db.SaveDocument(doc)
	if err != nil {
		return 0, fmt.Errorf("save delivery note: %w", err)
	}

	if s.posSync != nil {
		codes := make([]string, 0, len(doc.Items))
		for _, item := range doc.Items {
			codes = append(codes, item.ProductCode)
		}
		if _, err := s.posSync.SyncNewProductCodes(ctx, codes); err != nil {
			fmt.Printf("pos sync after save failed (note=%d): %v\n", noteID, err)
		}
	}

	return noteID, nil
}
