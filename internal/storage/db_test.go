package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"nouhin/internal"
	"nouhin/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addSupplier(t *testing.T, db *DB, code, name string) internal.Supplier {
	t.Helper()
	s, err := db.AddSupplier(util.StringPtr(code), name, nil)
	if err != nil {
		t.Fatalf("AddSupplier: %v", err)
	}
	return s
}

func TestUpsertQueueItemIdempotent(t *testing.T) {
	db := openTestDB(t)

	first, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:   "file-1",
		FileName: "note.xlsx",
		Status:   internal.StatusPendingSupplier,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}

	second, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:   "file-1",
		FileName: "note-renamed.xlsx",
		Status:   internal.StatusPendingSupplier,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected same row id after re-discovery, got %d then %d", first.ID, second.ID)
	}
	if second.FileName != "note-renamed.xlsx" {
		t.Errorf("expected refreshed file name, got %q", second.FileName)
	}

	items, err := db.ListQueue(nil, 0)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queue row, got %d", len(items))
	}
}

func TestUpsertPreservesConfirmedSupplier(t *testing.T) {
	db := openTestDB(t)
	s1 := addSupplier(t, db, "YMD", "山田食品")
	s2 := addSupplier(t, db, "SKR", "さくら物産")

	item, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:   "file-1",
		FileName: "note.xlsx",
		Status:   internal.StatusPendingSupplier,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}

	patched, err := db.PatchQueueItem(item.ID, QueuePatch{SupplierID: &s1.ID, SetSupplier: true})
	if err != nil {
		t.Fatalf("PatchQueueItem: %v", err)
	}
	if patched.Status != internal.StatusPending {
		t.Errorf("expected pending after supplier confirmation, got %q", patched.Status)
	}
	if !patched.SupplierConfirmed {
		t.Error("expected supplier to be marked confirmed")
	}

	again, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:     "file-1",
		FileName:   "note.xlsx",
		SupplierID: &s2.ID,
		Status:     internal.StatusPending,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}
	if again.SupplierID == nil || *again.SupplierID != s1.ID {
		t.Errorf("expected confirmed supplier %d to survive re-discovery, got %v", s1.ID, again.SupplierID)
	}
}

func TestUpsertKeepsTerminalStatus(t *testing.T) {
	db := openTestDB(t)
	s := addSupplier(t, db, "YMD", "山田食品")

	item, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:     "file-1",
		FileName:   "note.xlsx",
		SupplierID: &s.ID,
		Status:     internal.StatusPending,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}
	if err := db.MarkQueueProcessed(item.ID); err != nil {
		t.Fatalf("MarkQueueProcessed: %v", err)
	}

	again, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:     "file-1",
		FileName:   "note.xlsx",
		SupplierID: &s.ID,
		Status:     internal.StatusPending,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}
	if again.Status != internal.StatusProcessed {
		t.Errorf("expected processed status to survive re-discovery, got %q", again.Status)
	}
}

func TestClaimQueueItem(t *testing.T) {
	db := openTestDB(t)
	s := addSupplier(t, db, "YMD", "山田食品")

	noSupplier, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:   "file-1",
		FileName: "a.xlsx",
		Status:   internal.StatusPendingSupplier,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}
	if ok, err := db.ClaimQueueItem(noSupplier.ID); err != nil {
		t.Fatalf("ClaimQueueItem: %v", err)
	} else if ok {
		t.Error("expected claim without supplier to fail")
	}

	item, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:     "file-2",
		FileName:   "b.xlsx",
		SupplierID: &s.ID,
		Status:     internal.StatusPending,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.ClaimQueueItem(item.ID)
			if err != nil {
				t.Errorf("ClaimQueueItem: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one claimer to win, got %d", wins)
	}

	claimed, err := db.GetQueueItem(item.ID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if claimed.Status != internal.StatusProcessing {
		t.Errorf("expected processing status, got %q", claimed.Status)
	}
}

func TestClaimClearsPriorError(t *testing.T) {
	db := openTestDB(t)
	s := addSupplier(t, db, "YMD", "山田食品")

	item, err := db.UpsertQueueItem(internal.QueueItem{
		FileID:     "file-1",
		FileName:   "a.xlsx",
		SupplierID: &s.ID,
		Status:     internal.StatusPending,
	})
	if err != nil {
		t.Fatalf("UpsertQueueItem: %v", err)
	}
	if err := db.MarkQueueError(item.ID, "download failed"); err != nil {
		t.Fatalf("MarkQueueError: %v", err)
	}

	ok, err := db.ClaimQueueItem(item.ID)
	if err != nil {
		t.Fatalf("ClaimQueueItem: %v", err)
	}
	if !ok {
		t.Fatal("expected errored item to be claimable")
	}

	claimed, err := db.GetQueueItem(item.ID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	if claimed.ErrorMessage != nil {
		t.Errorf("expected error message cleared on claim, got %q", *claimed.ErrorMessage)
	}
}

func TestSaveTemplateSingleton(t *testing.T) {
	db := openTestDB(t)
	s := addSupplier(t, db, "YMD", "山田食品")

	tmpl := internal.FormatTemplate{
		SupplierID: s.ID,
		SourceType: internal.SourceSpreadsheet,
		Mapping: internal.ColumnMapping{
			internal.FieldProductCode: {Column: "A"},
			internal.FieldProductName: {Column: "B"},
		},
		Layout: &internal.SpreadsheetLayout{HeaderRowIndex: 0, DataStartRowIndex: 1},
	}

	first, err := db.SaveTemplate(tmpl)
	if err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	tmpl.Layout.DataStartRowIndex = 2
	second, err := db.SaveTemplate(tmpl)
	if err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("expected template id %d to be preserved on re-save, got %d", first.ID, second.ID)
	}
	if second.Layout == nil || second.Layout.DataStartRowIndex != 2 {
		t.Errorf("expected refreshed layout, got %+v", second.Layout)
	}

	count, err := db.CountTemplates(s.ID, internal.SourceSpreadsheet)
	if err != nil {
		t.Fatalf("CountTemplates: %v", err)
	}
	if count != 1 {
		t.Errorf("expected a single template row, got %d", count)
	}
}

func TestSaveTemplateRejectsInvalid(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SaveTemplate(internal.FormatTemplate{
		SupplierID: 1,
		SourceType: internal.SourceSpreadsheet,
		Mapping:    internal.ColumnMapping{internal.FieldProductCode: {Column: "A"}},
	})
	if err == nil {
		t.Error("expected spreadsheet template without layout to be rejected")
	}
}

func TestSyncCursorSingleton(t *testing.T) {
	db := openTestDB(t)

	cursor, err := db.GetSyncCursor()
	if err != nil {
		t.Fatalf("GetSyncCursor: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected no cursor in a fresh database, got %+v", cursor)
	}

	if err := db.SaveSyncCursor(internal.SyncCursor{
		WatchFolderID:  "folder-1",
		StartPageToken: util.StringPtr("100"),
	}); err != nil {
		t.Fatalf("SaveSyncCursor: %v", err)
	}
	if err := db.SaveSyncCursor(internal.SyncCursor{
		WatchFolderID:  "folder-1",
		StartPageToken: util.StringPtr("105"),
		PageToken:      util.StringPtr("103"),
	}); err != nil {
		t.Fatalf("SaveSyncCursor: %v", err)
	}

	cursor, err = db.GetSyncCursor()
	if err != nil {
		t.Fatalf("GetSyncCursor: %v", err)
	}
	if cursor == nil || cursor.StartPageToken == nil || *cursor.StartPageToken != "105" {
		t.Fatalf("expected updated cursor, got %+v", cursor)
	}
	if cursor.PageToken == nil || *cursor.PageToken != "103" {
		t.Errorf("expected page token 103, got %+v", cursor.PageToken)
	}
}

func TestSaveDocument(t *testing.T) {
	db := openTestDB(t)
	s := addSupplier(t, db, "YMD", "山田食品")

	noteID, err := db.SaveDocument(internal.Document{
		SupplierID:       s.ID,
		DeliveryDate:     "2024-03-05",
		TotalAmount:      650,
		OriginalFileName: "note.xlsx",
		SourceKind:       internal.FileSpreadsheet,
		Items: []internal.LineItem{
			{LineNumber: 1, DeliveryDate: "2024-03-05", ProductCode: "A001", ProductName: "りんご", Quantity: 3, UnitPrice: 150, Amount: 450},
			{LineNumber: 2, DeliveryDate: "2024-03-05", ProductCode: "A002", ProductName: "みかん", Quantity: 2, UnitPrice: 100, Amount: 200},
		},
	})
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	count, err := db.CountNoteItems(noteID)
	if err != nil {
		t.Fatalf("CountNoteItems: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored line items, got %d", count)
	}
}

func TestKnownPosProductCodes(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertPosProducts([]internal.PosProduct{
		{ProductCode: "A001", ProductID: util.StringPtr("p-1")},
		{ProductCode: "A002", ProductID: util.StringPtr("p-2")},
	}); err != nil {
		t.Fatalf("UpsertPosProducts: %v", err)
	}

	known, err := db.KnownPosProductCodes([]string{"A001", "A003"})
	if err != nil {
		t.Fatalf("KnownPosProductCodes: %v", err)
	}
	if !known["A001"] || known["A003"] {
		t.Errorf("unexpected known set: %v", known)
	}
}
