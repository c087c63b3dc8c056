package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nouhin/internal"
)

// UpsertQueueItem records a discovered file keyed by its remote file id.
// Re-discovery refreshes file metadata and inference hints, but a supplier
// a human has confirmed is never overwritten, and an item that has left
// the discovery states (processing, processed, error) keeps its status.
func (d *DB) UpsertQueueItem(item internal.QueueItem) (internal.QueueItem, error) {
	_, err := d.conn.Exec(`
INSERT INTO import_queue (
  fileId, fileName, mimeType, md5Checksum,
  supplierId, inferredSupplierCode, inferredSupplierName,
  sourceFolderId, sourceFolderName, sourcePath,
  size, remoteModifiedTime, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(fileId) DO UPDATE SET
  fileName=excluded.fileName,
  mimeType=excluded.mimeType,
  md5Checksum=excluded.md5Checksum,
  supplierId=CASE WHEN import_queue.supplierConfirmed = 1
    THEN import_queue.supplierId ELSE excluded.supplierId END,
  inferredSupplierCode=excluded.inferredSupplierCode,
  inferredSupplierName=excluded.inferredSupplierName,
  sourceFolderId=excluded.sourceFolderId,
  sourceFolderName=excluded.sourceFolderName,
  sourcePath=excluded.sourcePath,
  size=excluded.size,
  remoteModifiedTime=excluded.remoteModifiedTime,
  status=CASE WHEN import_queue.status IN ('pending', 'pending_supplier')
    THEN CASE WHEN import_queue.supplierConfirmed = 1 THEN 'pending' ELSE excluded.status END
    ELSE import_queue.status END,
  updatedAt=CURRENT_TIMESTAMP
`,
		item.FileID, item.FileName, item.MimeType, item.MD5Checksum,
		item.SupplierID, item.InferredSupplierCode, item.InferredSupplierName,
		item.SourceFolderID, item.SourceFolderName, item.SourcePath,
		item.Size, item.RemoteModifiedTime, string(item.Status),
	)
	if err != nil {
		return internal.QueueItem{}, err
	}

	saved, err := d.GetQueueItemByFileID(item.FileID)
	if err != nil {
		return internal.QueueItem{}, err
	}
	if saved == nil {
		return internal.QueueItem{}, errors.New("failed to upsert queue item")
	}
	return *saved, nil
}

const queueItemColumns = `
  id, fileId, fileName, mimeType, md5Checksum,
  supplierId, supplierConfirmed, inferredSupplierCode, inferredSupplierName,
  sourceFolderId, sourceFolderName, sourcePath,
  size, remoteModifiedTime, status,
  errorMessage, lastErrorAt, processedAt, createdAt, updatedAt
`

func scanQueueItem(row interface{ Scan(...any) error }) (internal.QueueItem, error) {
	var item internal.QueueItem
	var confirmed int
	var status string
	err := row.Scan(
		&item.ID, &item.FileID, &item.FileName, &item.MimeType, &item.MD5Checksum,
		&item.SupplierID, &confirmed, &item.InferredSupplierCode, &item.InferredSupplierName,
		&item.SourceFolderID, &item.SourceFolderName, &item.SourcePath,
		&item.Size, &item.RemoteModifiedTime, &status,
		&item.ErrorMessage, &item.LastErrorAt, &item.ProcessedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return internal.QueueItem{}, err
	}
	item.SupplierConfirmed = confirmed != 0
	item.Status = internal.ImportStatus(status)
	return item, nil
}

func (d *DB) GetQueueItem(id int) (*internal.QueueItem, error) {
	row := d.conn.QueryRow(`SELECT `+queueItemColumns+` FROM import_queue WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (d *DB) GetQueueItemByFileID(fileID string) (*internal.QueueItem, error) {
	row := d.conn.QueryRow(`SELECT `+queueItemColumns+` FROM import_queue WHERE fileId = ?`, fileID)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (d *DB) ListQueue(statuses []internal.ImportStatus, limit int) ([]internal.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM import_queue`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY createdAt DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *DB) CountQueueByStatus() (map[internal.ImportStatus]int, error) {
	rows, err := d.conn.Query(`SELECT status, COUNT(*) FROM import_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[internal.ImportStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[internal.ImportStatus(status)] = count
	}
	return counts, rows.Err()
}

// ClaimQueueItem atomically moves an item into processing. The conditional
// update enforces the processable states and a known supplier in one
// statement, so concurrent claimers cannot both win.
func (d *DB) ClaimQueueItem(id int) (bool, error) {
	result, err := d.conn.Exec(`
UPDATE import_queue
SET status = ?, errorMessage = NULL, lastErrorAt = NULL, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
  AND status IN (?, ?, ?)
  AND supplierId IS NOT NULL
`, string(internal.StatusProcessing), id,
		string(internal.StatusPending), string(internal.StatusReady), string(internal.StatusError))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (d *DB) MarkQueueProcessed(id int) error {
	_, err := d.conn.Exec(`
UPDATE import_queue
SET status = ?, processedAt = CURRENT_TIMESTAMP, errorMessage = NULL, lastErrorAt = NULL,
    updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(internal.StatusProcessed), id)
	return err
}

func (d *DB) MarkQueueError(id int, message string) error {
	_, err := d.conn.Exec(`
UPDATE import_queue
SET status = ?, errorMessage = ?, lastErrorAt = CURRENT_TIMESTAMP, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(internal.StatusError), message, id)
	return err
}

// QueuePatch carries the fields of a manual queue update. Nil and false
// members leave the stored values alone.
type QueuePatch struct {
	Status      *internal.ImportStatus
	SupplierID  *int
	SetSupplier bool
	ClearError  bool
}

// PatchQueueItem applies a manual correction. Setting a supplier marks it
// human-confirmed, and promotes an item that was only waiting on supplier
// identification to pending.
func (d *DB) PatchQueueItem(id int, patch QueuePatch) (*internal.QueueItem, error) {
	var sets []string
	var args []any

	if patch.SetSupplier {
		sets = append(sets, "supplierId = ?", "supplierConfirmed = 1")
		args = append(args, patch.SupplierID)
		if patch.Status == nil && patch.SupplierID != nil {
			sets = append(sets, fmt.Sprintf(
				"status = CASE WHEN status = '%s' THEN '%s' ELSE status END",
				internal.StatusPendingSupplier, internal.StatusPending))
		}
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.ClearError {
		sets = append(sets, "errorMessage = NULL", "lastErrorAt = NULL")
	}
	if len(sets) == 0 {
		return d.GetQueueItem(id)
	}

	sets = append(sets, "updatedAt = CURRENT_TIMESTAMP")
	args = append(args, id)

	result, err := d.conn.Exec(`UPDATE import_queue SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return d.GetQueueItem(id)
}
