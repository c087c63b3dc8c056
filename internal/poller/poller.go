package poller

import (
	"fmt"
	"sync"

	"nouhin/internal"
	"nouhin/internal/drive"
	"nouhin/internal/storage"
	"nouhin/internal/supplier"
)

const folderMimeType = "application/vnd.google-apps.folder"

type EntryError struct {
	FileID  string
	Message string
}

type PollResult struct {
	Discovered  int
	Skipped     int
	Errors      []EntryError
	QueueSample []internal.QueueItem
}

// Poller drains the remote change feed into the import queue.
type Poller struct {
	db            *storage.DB
	provider      drive.Provider
	watchFolderID string
	workers       int
}

func New(db *storage.DB, provider drive.Provider, watchFolderID string, workers int) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{db: db, provider: provider, watchFolderID: watchFolderID, workers: workers}
}

// Poll runs one polling cycle. Pages are consumed sequentially; entries
// within a page are enqueued concurrently, and a bad entry is recorded
// without aborting the rest. The cursor is persisted exactly once at the
// end, so a crash mid-cycle re-reads from the previous resume point and the
// idempotent queue upserts absorb the replay.
func (p *Poller) Poll() (PollResult, error) {
	var result PollResult

	roster, err := p.db.ListActiveSuppliers()
	if err != nil {
		return result, fmt.Errorf("load suppliers: %w", err)
	}

	cursor, err := p.db.GetSyncCursor()
	if err != nil {
		return result, fmt.Errorf("load sync cursor: %w", err)
	}
	if cursor == nil || cursor.WatchFolderID != p.watchFolderID {
		start, err := p.provider.GetStartPageToken()
		if err != nil {
			return result, fmt.Errorf("bootstrap start page token: %w", err)
		}
		cursor = &internal.SyncCursor{WatchFolderID: p.watchFolderID, StartPageToken: &start}
	}

	token := ""
	if cursor.PageToken != nil {
		token = *cursor.PageToken
	} else if cursor.StartPageToken != nil {
		token = *cursor.StartPageToken
	}
	if token == "" {
		return result, fmt.Errorf("sync cursor has no usable token")
	}

	resolver := drive.NewPathResolver(p.provider, p.watchFolderID)
	cache := drive.NewFolderCache()

	for token != "" {
		page, err := p.provider.ListChanges(token)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{Message: fmt.Sprintf("list changes: %v", err)})
			retry := token
			cursor.PageToken = &retry
			break
		}

		p.processPage(page.Changes, resolver, cache, roster, &result)

		if page.NewStartPageToken != "" {
			start := page.NewStartPageToken
			cursor.StartPageToken = &start
			cursor.PageToken = nil
			token = ""
		} else if page.NextPageToken != "" {
			next := page.NextPageToken
			cursor.PageToken = &next
			token = next
		} else {
			token = ""
		}
	}

	if err := p.db.SaveSyncCursor(*cursor); err != nil {
		return result, fmt.Errorf("save sync cursor: %w", err)
	}

	sample, err := p.db.ListQueue(nil, 5)
	if err != nil {
		return result, fmt.Errorf("sample queue: %w", err)
	}
	result.QueueSample = sample
	return result, nil
}

func (p *Poller) processPage(changes []drive.Change, resolver *drive.PathResolver, cache *drive.FolderCache, roster []internal.Supplier, result *PollResult) {
	var items []internal.QueueItem

	for _, change := range changes {
		if change.Removed || change.File == nil {
			result.Skipped++
			continue
		}
		file := change.File
		if file.ID == "" || file.Name == "" {
			result.Errors = append(result.Errors, EntryError{
				FileID:  change.FileID,
				Message: "change entry is missing a file id or name",
			})
			continue
		}
		if file.MimeType != nil && *file.MimeType == folderMimeType {
			result.Skipped++
			continue
		}

		ancestry, err := resolver.Resolve(file.Parents, cache)
		if err != nil {
			result.Errors = append(result.Errors, EntryError{FileID: file.ID, Message: err.Error()})
			continue
		}
		if !ancestry.Contained {
			result.Skipped++
			continue
		}

		items = append(items, p.buildQueueItem(file, ancestry, roster))
	}

	p.upsertAll(items, result)
}

func (p *Poller) buildQueueItem(file *drive.FileInfo, ancestry drive.Ancestry, roster []internal.Supplier) internal.QueueItem {
	match := supplier.Infer(ancestry.Segments, file.Name, roster)

	status := internal.StatusPendingSupplier
	if match.SupplierID != nil {
		status = internal.StatusPending
	}

	item := internal.QueueItem{
		FileID:               file.ID,
		FileName:             file.Name,
		MimeType:             file.MimeType,
		MD5Checksum:          file.MD5Checksum,
		SupplierID:           match.SupplierID,
		InferredSupplierCode: match.InferredCode,
		InferredSupplierName: match.InferredName,
		Size:                 file.Size,
		RemoteModifiedTime:   file.ModifiedTime,
		Status:               status,
	}
	if ancestry.Parent != nil {
		item.SourceFolderID = &ancestry.Parent.ID
		item.SourceFolderName = &ancestry.Parent.Name
	}
	if len(ancestry.Segments) > 0 {
		path := ""
		for i, segment := range ancestry.Segments {
			if i > 0 {
				path += "/"
			}
			path += segment
		}
		item.SourcePath = &path
	}
	return item
}

func (p *Poller) upsertAll(items []internal.QueueItem, result *PollResult) {
	if len(items) == 0 {
		return
	}

	jobs := make(chan internal.QueueItem)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				_, err := p.db.UpsertQueueItem(item)
				mu.Lock()
				if err != nil {
					result.Errors = append(result.Errors, EntryError{FileID: item.FileID, Message: err.Error()})
				} else {
					result.Discovered++
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
}
