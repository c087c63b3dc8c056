package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nouhin/internal"
	"nouhin/internal/config"
	"nouhin/internal/drive"
	"nouhin/internal/extract"
	"nouhin/internal/ledger"
	"nouhin/internal/pdfai"
	"nouhin/internal/poller"
	"nouhin/internal/pos"
	"nouhin/internal/queue"
	"nouhin/internal/storage"
	"nouhin/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "drive:poll":
		must(cfg.Require("DRIVE_WATCH_FOLDER_ID", cfg.DriveWatchFolderID))
		provider, err := drive.NewGoogleProvider(cfg)
		must(err)
		p := poller.New(db, provider, cfg.DriveWatchFolderID, cfg.DrivePollWorkers)
		result, err := p.Poll()
		must(err)
		fmt.Printf("poll done discovered=%d skipped=%d errors=%d\n", result.Discovered, result.Skipped, len(result.Errors))
		for _, entryErr := range result.Errors {
			fmt.Printf("  error fileId=%s: %s\n", entryErr.FileID, entryErr.Message)
		}
		for _, item := range result.QueueSample {
			fmt.Printf("  queue id=%d status=%s file=%s\n", item.ID, item.Status, item.FileName)
		}

	case "queue:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		status := fs.String("status", "", "comma separated statuses")
		limit := fs.Int("limit", 50, "max rows")
		_ = fs.Parse(os.Args[2:])

		var statuses []internal.ImportStatus
		for _, s := range strings.Split(*status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, internal.ImportStatus(s))
			}
		}
		items, err := db.ListQueue(statuses, *limit)
		must(err)
		for _, item := range items {
			supplier := "-"
			if item.SupplierID != nil {
				supplier = fmt.Sprintf("%d", *item.SupplierID)
			}
			fmt.Printf("id=%d status=%s supplier=%s file=%s\n", item.ID, item.Status, supplier, item.FileName)
			if item.ErrorMessage != nil {
				fmt.Printf("  error: %s\n", *item.ErrorMessage)
			}
		}
		counts, err := db.CountQueueByStatus()
		must(err)
		fmt.Printf("totals:")
		for status, count := range counts {
			fmt.Printf(" %s=%d", status, count)
		}
		fmt.Println()

	case "queue:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "queue item id")
		_ = fs.Parse(os.Args[2:])
		if *id == 0 {
			must(fmt.Errorf("--id is required"))
		}

		provider, err := drive.NewGoogleProvider(cfg)
		must(err)
		processor := queue.NewProcessor(db, provider, makePDFExtractor(cfg), makeLedger(db, cfg), cfg.DriveProcessedFolderID, cfg.DrivePendingFolderID)

		result, err := processor.Process(context.Background(), *id)
		var precondition *queue.PreconditionError
		if errors.As(err, &precondition) {
			must(fmt.Errorf("not processable: %s", precondition.Reason))
		}
		must(err)
		fmt.Printf("processed id=%d note=%d items=%d\n", result.ItemID, result.NoteID, result.ItemCount)
		for _, warning := range result.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}

	case "queue:update":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "queue item id")
		supplierID := fs.Int("supplier", 0, "supplier id to assign")
		status := fs.String("status", "", "new status")
		clearError := fs.Bool("clear-error", false, "clear the stored error")
		_ = fs.Parse(os.Args[2:])
		if *id == 0 {
			must(fmt.Errorf("--id is required"))
		}

		patch := storage.QueuePatch{ClearError: *clearError}
		if *supplierID != 0 {
			patch.SupplierID = supplierID
			patch.SetSupplier = true
		}
		if strings.TrimSpace(*status) != "" {
			newStatus := internal.ImportStatus(*status)
			patch.Status = &newStatus
		}

		var provider drive.Provider
		if patch.Status != nil && *patch.Status == internal.StatusPendingSupplier && cfg.DrivePendingFolderID != "" {
			provider, err = drive.NewGoogleProvider(cfg)
			must(err)
		}
		processor := queue.NewProcessor(db, provider, nil, nil, "", cfg.DrivePendingFolderID)
		item, err := processor.Update(*id, patch)
		must(err)
		fmt.Printf("updated id=%d status=%s confirmed=%v\n", item.ID, item.Status, item.SupplierConfirmed)

	case "upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "local file path")
		supplierID := fs.Int("supplier", 0, "supplier id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" || *supplierID == 0 {
			must(fmt.Errorf("--file and --supplier are required"))
		}

		content, err := os.ReadFile(*file)
		must(err)
		meta := extract.Meta{SupplierID: *supplierID, FileName: filepath.Base(*file)}
		doc, err := queue.ExtractFile(context.Background(), db, makePDFExtractor(cfg), content, meta)
		must(err)
		noteID, err := makeLedger(db, cfg).Save(context.Background(), doc)
		must(err)
		fmt.Printf("uploaded note=%d items=%d total=%.2f\n", noteID, len(doc.Items), doc.TotalAmount)
		for _, warning := range doc.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}

	case "template:save":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplierID := fs.Int("supplier", 0, "supplier id")
		sourceType := fs.String("type", "", "spreadsheet|delimited-text")
		mapping := fs.String("mapping", "", `field mapping JSON, e.g. {"product_code":{"column":"A"}}`)
		headerRow := fs.Int("header-row", 0, "header row offset (spreadsheet)")
		dataStartRow := fs.Int("data-start-row", 1, "first data row offset (spreadsheet)")
		_ = fs.Parse(os.Args[2:])
		if *supplierID == 0 || strings.TrimSpace(*sourceType) == "" || strings.TrimSpace(*mapping) == "" {
			must(fmt.Errorf("--supplier --type --mapping are required"))
		}

		var columnMapping internal.ColumnMapping
		must(json.Unmarshal([]byte(*mapping), &columnMapping))

		tmpl := internal.FormatTemplate{
			SupplierID: *supplierID,
			SourceType: internal.SourceType(*sourceType),
			Mapping:    columnMapping,
		}
		if tmpl.SourceType == internal.SourceSpreadsheet {
			tmpl.Layout = &internal.SpreadsheetLayout{HeaderRowIndex: *headerRow, DataStartRowIndex: *dataStartRow}
		}
		saved, err := db.SaveTemplate(tmpl)
		must(err)
		fmt.Printf("template saved id=%d supplier=%d type=%s\n", saved.ID, saved.SupplierID, saved.SourceType)

	case "suppliers:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "supplier name")
		code := fs.String("code", "", "supplier code")
		terms := fs.String("terms", "", "payment terms")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*name) == "" {
			must(fmt.Errorf("--name is required"))
		}

		var codePtr, termsPtr *string
		if strings.TrimSpace(*code) != "" {
			codePtr = util.StringPtr(*code)
		}
		if strings.TrimSpace(*terms) != "" {
			termsPtr = util.StringPtr(*terms)
		}
		supplier, err := db.AddSupplier(codePtr, *name, termsPtr)
		must(err)
		fmt.Printf("supplier added id=%d name=%s\n", supplier.ID, supplier.Name)

	case "suppliers:list":
		suppliers, err := db.ListActiveSuppliers()
		must(err)
		for _, supplier := range suppliers {
			code := "-"
			if supplier.Code != nil {
				code = *supplier.Code
			}
			fmt.Printf("id=%d code=%s name=%s\n", supplier.ID, code, supplier.Name)
		}

	case "pos:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		codes := fs.String("codes", "", "comma separated product codes to mirror")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("POS_CLIENT_ID", cfg.PosClientID))
		must(cfg.Require("POS_CONTRACT_ID", cfg.PosContractID))

		syncSvc := pos.NewSyncService(db, pos.NewClient(cfg, pos.NewTokenCache()))
		departments, err := syncSvc.SyncDepartments(context.Background())
		must(err)
		fmt.Printf("pos departments synced: %d\n", departments)

		var wanted []string
		for _, code := range strings.Split(*codes, ",") {
			if code = strings.TrimSpace(code); code != "" {
				wanted = append(wanted, code)
			}
		}
		if len(wanted) > 0 {
			products, err := syncSvc.SyncNewProductCodes(context.Background(), wanted)
			must(err)
			fmt.Printf("pos products mirrored: %d\n", products)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func makePDFExtractor(cfg config.Config) pdfai.Extractor {
	if strings.TrimSpace(cfg.PDFAIAPIKey) == "" {
		return nil
	}
	return pdfai.NewClient(cfg)
}

func makeLedger(db *storage.DB, cfg config.Config) *ledger.Service {
	var posSync *pos.SyncService
	if strings.TrimSpace(cfg.PosClientID) != "" && strings.TrimSpace(cfg.PosContractID) != "" {
		posSync = pos.NewSyncService(db, pos.NewClient(cfg, pos.NewTokenCache()))
	}
	return ledger.NewService(db, posSync)
}

func usage() {
	fmt.Println("usage: nouhin <command>")
	fmt.Println("commands:")
	fmt.Println("  drive:poll")
	fmt.Println("  queue:list [--status=pending,error] [--limit=50]")
	fmt.Println("  queue:process --id=1")
	fmt.Println("  queue:update --id=1 [--supplier=2] [--status=pending] [--clear-error]")
	fmt.Println("  upload --file=./note.xlsx --supplier=2")
	fmt.Println(`  template:save --supplier=2 --type=spreadsheet --mapping='{"product_code":{"column":"A"}}' [--header-row=0 --data-start-row=1]`)
	fmt.Println("  suppliers:add --name=... [--code=...] [--terms=...]")
	fmt.Println("  suppliers:list")
	fmt.Println("  pos:sync [--codes=A001,A002]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
