package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"nouhin/internal"
	"nouhin/internal/drive"
	"nouhin/internal/extract"
	"nouhin/internal/ledger"
	"nouhin/internal/pdfai"
	"nouhin/internal/storage"
)

// PreconditionError marks a process request that was rejected before any
// work happened: wrong state, no supplier, or a lost claim race.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

type Result struct {
	ItemID    int
	NoteID    int64
	ItemCount int
	Warnings  []string
}

// Processor drives one queue item from claimed to processed: download,
// extract, persist, relocate.
type Processor struct {
	db                *storage.DB
	provider          drive.Provider
	pdfExtractor      pdfai.Extractor
	ledger            *ledger.Service
	processedFolderID string
	pendingFolderID   string
}

func NewProcessor(db *storage.DB, provider drive.Provider, pdfExtractor pdfai.Extractor, ledgerSvc *ledger.Service, processedFolderID, pendingFolderID string) *Processor {
	return &Processor{
		db:                db,
		provider:          provider,
		pdfExtractor:      pdfExtractor,
		ledger:            ledgerSvc,
		processedFolderID: processedFolderID,
		pendingFolderID:   pendingFolderID,
	}
}

// ClassifyFileName maps a file name to the extraction route its extension
// implies.
func ClassifyFileName(name string) (internal.FileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return internal.FileSpreadsheet, nil
	case ".csv", ".tsv":
		return internal.FileDelimited, nil
	case ".pdf":
		return internal.FilePDF, nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", name)
	}
}

// Process runs one item through the import pipeline. Precondition failures
// come back as *PreconditionError and leave the item untouched; failures
// after the claim park the item in the error state and are also returned.
func (p *Processor) Process(ctx context.Context, id int) (Result, error) {
	item, err := p.db.GetQueueItem(id)
	if err != nil {
		return Result{}, err
	}
	if item == nil {
		return Result{}, fmt.Errorf("queue item %d not found", id)
	}

	switch item.Status {
	case internal.StatusPending, internal.StatusReady, internal.StatusError:
	default:
		return Result{}, &PreconditionError{Reason: fmt.Sprintf("item %d is %s and cannot be processed", id, item.Status)}
	}
	if item.SupplierID == nil {
		return Result{}, &PreconditionError{Reason: fmt.Sprintf("item %d has no supplier assigned", id)}
	}

	claimed, err := p.db.ClaimQueueItem(id)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return Result{}, &PreconditionError{Reason: fmt.Sprintf("item %d was claimed by another worker", id)}
	}

	if _, err := ClassifyFileName(item.FileName); err != nil {
		return p.fail(id, err)
	}

	content, err := p.provider.Download(item.FileID)
	if err != nil {
		return p.fail(id, fmt.Errorf("download %s: %w", item.FileID, err))
	}

	meta := extract.Meta{SupplierID: *item.SupplierID, FileName: item.FileName}
	doc, err := ExtractFile(ctx, p.db, p.pdfExtractor, content, meta)
	if err != nil {
		return p.fail(id, err)
	}

	noteID, err := p.ledger.Save(ctx, doc)
	if err != nil {
		return p.fail(id, err)
	}

	if p.processedFolderID != "" {
		if err := p.provider.Move(item.FileID, p.processedFolderID); err != nil {
			fmt.Printf("relocate %s to processed folder failed: %v\n", item.FileID, err)
		}
	}

	if err := p.db.MarkQueueProcessed(id); err != nil {
		return Result{}, err
	}

	return Result{
		ItemID:    id,
		NoteID:    noteID,
		ItemCount: len(doc.Items),
		Warnings:  doc.Warnings,
	}, nil
}

// ExtractFile routes raw file content to the right extraction path and
// applies the supplier's registered template when one exists. It is shared
// between queue processing and one-off local uploads.
func ExtractFile(ctx context.Context, db *storage.DB, pdfExtractor pdfai.Extractor, content []byte, meta extract.Meta) (internal.Document, error) {
	kind, err := ClassifyFileName(meta.FileName)
	if err != nil {
		return internal.Document{}, err
	}

	switch kind {
	case internal.FileSpreadsheet:
		tmpl, err := db.FindActiveTemplate(meta.SupplierID, internal.SourceSpreadsheet)
		if err != nil {
			return internal.Document{}, err
		}
		grid, err := extract.GridFromXLSX(content)
		if err != nil {
			return internal.Document{}, fmt.Errorf("read spreadsheet: %w", err)
		}
		return extract.FromGrid(grid, meta, tmpl), nil

	case internal.FileDelimited:
		tmpl, err := db.FindActiveTemplate(meta.SupplierID, internal.SourceDelimited)
		if err != nil {
			return internal.Document{}, err
		}
		records, err := extract.ParseDelimited(extract.DecodeText(content))
		if err != nil {
			return internal.Document{}, fmt.Errorf("parse delimited text: %w", err)
		}
		return extract.FromRecords(records, meta, tmpl), nil

	case internal.FilePDF:
		if pdfExtractor == nil {
			return internal.Document{}, fmt.Errorf("pdf extraction is not configured")
		}
		return pdfExtractor.ExtractPDF(ctx, content, meta)

	default:
		return internal.Document{}, fmt.Errorf("unsupported file kind: %s", kind)
	}
}

func (p *Processor) fail(id int, cause error) (Result, error) {
	if err := p.db.MarkQueueError(id, cause.Error()); err != nil {
		return Result{}, fmt.Errorf("%v (and marking the item failed: %w)", cause, err)
	}
	return Result{ItemID: id}, cause
}

// Update applies a manual correction to a queue item. Moving an item back
// to pending_supplier also relocates the remote file into the pending
// folder so an operator can find it; a failed relocation is only logged.
func (p *Processor) Update(id int, patch storage.QueuePatch) (*internal.QueueItem, error) {
	item, err := p.db.PatchQueueItem(id, patch)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("queue item %d not found", id)
	}

	if patch.Status != nil && *patch.Status == internal.StatusPendingSupplier && p.pendingFolderID != "" {
		if err := p.provider.Move(item.FileID, p.pendingFolderID); err != nil {
			fmt.Printf("relocate %s to pending folder failed: %v\n", item.FileID, err)
		}
	}

	return item, nil
}
