package poller

import (
	"errors"
	"path/filepath"
	"testing"

	"nouhin/internal"
	"nouhin/internal/drive"
	"nouhin/internal/storage"
	"nouhin/internal/util"
)

type fakeProvider struct {
	startToken string
	pages      map[string]drive.ChangePage
	fail       map[string]error
	folders    map[string]*drive.Folder
}

func (f *fakeProvider) GetStartPageToken() (string, error) { return f.startToken, nil }

func (f *fakeProvider) ListChanges(token string) (drive.ChangePage, error) {
	if err, ok := f.fail[token]; ok {
		return drive.ChangePage{}, err
	}
	page, ok := f.pages[token]
	if !ok {
		return drive.ChangePage{NewStartPageToken: token}, nil
	}
	return page, nil
}

func (f *fakeProvider) GetFolder(id string) (*drive.Folder, error) { return f.folders[id], nil }
func (f *fakeProvider) ListFolderChildren(string) ([]drive.FileInfo, error) {
	return nil, nil
}
func (f *fakeProvider) Download(string) ([]byte, error) { return nil, errors.New("not implemented") }
func (f *fakeProvider) Move(string, string) error       { return nil }

func testFolders() map[string]*drive.Folder {
	return map[string]*drive.Folder{
		"watch": {ID: "watch", Name: "納品書"},
		"ymd":   {ID: "ymd", Name: "山田食品", Parents: []string{"watch"}},
		"misc":  {ID: "misc", Name: "misc", Parents: []string{"watch"}},
		"out":   {ID: "out", Name: "outside", Parents: []string{"root"}},
	}
}

func mkFile(id, name, parent string) *drive.FileInfo {
	return &drive.FileInfo{ID: id, Name: name, Parents: []string{parent}}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSupplier(t *testing.T, db *storage.DB) {
	t.Helper()
	if _, err := db.AddSupplier(util.StringPtr("YMD"), "山田食品", nil); err != nil {
		t.Fatalf("AddSupplier: %v", err)
	}
}

func TestPollDiscoversAndClassifies(t *testing.T) {
	db := openTestDB(t)
	seedSupplier(t, db)

	folderMime := folderMimeType
	provider := &fakeProvider{
		startToken: "10",
		folders:    testFolders(),
		pages: map[string]drive.ChangePage{
			"10": {
				Changes: []drive.Change{
					{FileID: "f1", File: mkFile("f1", "note.xlsx", "ymd")},
					{FileID: "f2", File: mkFile("f2", "0305.csv", "misc")},
					{FileID: "f3", Removed: true},
					{FileID: "f4", File: &drive.FileInfo{ID: "f4", Name: "sub", MimeType: &folderMime, Parents: []string{"watch"}}},
					{FileID: "f5", File: mkFile("f5", "stray.xlsx", "out")},
				},
				NewStartPageToken: "11",
			},
		},
	}

	result, err := New(db, provider, "watch", 2).Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Discovered != 2 {
		t.Errorf("Discovered = %d, want 2", result.Discovered)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", result.Skipped)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}

	matched, err := db.GetQueueItemByFileID("f1")
	if err != nil {
		t.Fatalf("GetQueueItemByFileID: %v", err)
	}
	if matched.Status != internal.StatusPending {
		t.Errorf("f1 status = %q, want pending", matched.Status)
	}
	if matched.SupplierID == nil {
		t.Error("expected f1 to carry the inferred supplier")
	}
	if matched.SourcePath == nil || *matched.SourcePath != "山田食品" {
		t.Errorf("f1 sourcePath = %v, want 山田食品", matched.SourcePath)
	}

	unmatched, err := db.GetQueueItemByFileID("f2")
	if err != nil {
		t.Fatalf("GetQueueItemByFileID: %v", err)
	}
	if unmatched.Status != internal.StatusPendingSupplier {
		t.Errorf("f2 status = %q, want pending_supplier", unmatched.Status)
	}

	cursor, err := db.GetSyncCursor()
	if err != nil {
		t.Fatalf("GetSyncCursor: %v", err)
	}
	if cursor == nil || cursor.StartPageToken == nil || *cursor.StartPageToken != "11" {
		t.Fatalf("cursor = %+v, want start token 11", cursor)
	}
	if cursor.PageToken != nil {
		t.Errorf("expected no mid-listing token after a complete cycle, got %q", *cursor.PageToken)
	}
}

func TestPollIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedSupplier(t, db)

	provider := &fakeProvider{
		startToken: "10",
		folders:    testFolders(),
		pages: map[string]drive.ChangePage{
			"10": {
				Changes:           []drive.Change{{FileID: "f1", File: mkFile("f1", "note.xlsx", "ymd")}},
				NewStartPageToken: "11",
			},
			"11": {
				Changes:           []drive.Change{{FileID: "f1", File: mkFile("f1", "note.xlsx", "ymd")}},
				NewStartPageToken: "12",
			},
		},
	}

	p := New(db, provider, "watch", 2)
	for i := 0; i < 2; i++ {
		if _, err := p.Poll(); err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
	}

	items, err := db.ListQueue(nil, 0)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queue row after replay, got %d", len(items))
	}
}

func TestPollFollowsContinuations(t *testing.T) {
	db := openTestDB(t)
	seedSupplier(t, db)

	provider := &fakeProvider{
		startToken: "10",
		folders:    testFolders(),
		pages: map[string]drive.ChangePage{
			"10": {
				Changes:       []drive.Change{{FileID: "f1", File: mkFile("f1", "a.xlsx", "ymd")}},
				NextPageToken: "10b",
			},
			"10b": {
				Changes:           []drive.Change{{FileID: "f2", File: mkFile("f2", "b.xlsx", "ymd")}},
				NewStartPageToken: "11",
			},
		},
	}

	result, err := New(db, provider, "watch", 2).Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Discovered != 2 {
		t.Errorf("Discovered = %d, want 2", result.Discovered)
	}

	cursor, _ := db.GetSyncCursor()
	if cursor.StartPageToken == nil || *cursor.StartPageToken != "11" {
		t.Errorf("cursor start token = %v, want 11", cursor.StartPageToken)
	}
}

func TestPollKeepsResumableTokenOnListFailure(t *testing.T) {
	db := openTestDB(t)
	seedSupplier(t, db)

	provider := &fakeProvider{
		startToken: "10",
		folders:    testFolders(),
		pages: map[string]drive.ChangePage{
			"10": {
				Changes:       []drive.Change{{FileID: "f1", File: mkFile("f1", "a.xlsx", "ymd")}},
				NextPageToken: "10b",
			},
		},
		fail: map[string]error{"10b": errors.New("rate limited")},
	}

	result, err := New(db, provider, "watch", 2).Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %v", result.Errors)
	}
	if result.Discovered != 1 {
		t.Errorf("expected the first page to be processed, got %d", result.Discovered)
	}

	cursor, _ := db.GetSyncCursor()
	if cursor.PageToken == nil || *cursor.PageToken != "10b" {
		t.Fatalf("cursor page token = %v, want 10b so the failed page is retried", cursor.PageToken)
	}
	if cursor.StartPageToken == nil || *cursor.StartPageToken != "10" {
		t.Errorf("cursor start token = %v, want unchanged 10", cursor.StartPageToken)
	}
}

func TestPollRecordsBadEntriesWithoutAborting(t *testing.T) {
	db := openTestDB(t)
	seedSupplier(t, db)

	provider := &fakeProvider{
		startToken: "10",
		folders:    testFolders(),
		pages: map[string]drive.ChangePage{
			"10": {
				Changes: []drive.Change{
					{FileID: "bad", File: &drive.FileInfo{ID: "bad", Parents: []string{"ymd"}}},
					{FileID: "f1", File: mkFile("f1", "a.xlsx", "ymd")},
				},
				NewStartPageToken: "11",
			},
		},
	}

	result, err := New(db, provider, "watch", 2).Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one entry error, got %v", result.Errors)
	}
	if result.Discovered != 1 {
		t.Errorf("expected the good entry to be enqueued, got %d", result.Discovered)
	}
}
