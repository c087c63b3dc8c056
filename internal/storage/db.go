package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"nouhin/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS suppliers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  code TEXT,
  name TEXT NOT NULL,
  paymentTerms TEXT,
  isActive INTEGER NOT NULL DEFAULT 1,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_suppliers_name ON suppliers(name);

CREATE TABLE IF NOT EXISTS format_templates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierId INTEGER NOT NULL,
  sourceType TEXT NOT NULL,
  mappingJson TEXT NOT NULL,
  headerRowIndex INTEGER,
  dataStartRowIndex INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(supplierId, sourceType),
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS import_queue (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fileId TEXT NOT NULL UNIQUE,
  fileName TEXT NOT NULL,
  mimeType TEXT,
  md5Checksum TEXT,
  supplierId INTEGER,
  supplierConfirmed INTEGER NOT NULL DEFAULT 0,
  inferredSupplierCode TEXT,
  inferredSupplierName TEXT,
  sourceFolderId TEXT,
  sourceFolderName TEXT,
  sourcePath TEXT,
  size INTEGER,
  remoteModifiedTime TEXT,
  status TEXT NOT NULL DEFAULT 'pending_supplier',
  errorMessage TEXT,
  lastErrorAt TEXT,
  processedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_import_queue_status ON import_queue(status);

CREATE TABLE IF NOT EXISTS sync_state (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  watchFolderId TEXT NOT NULL,
  startPageToken TEXT,
  pageToken TEXT,
  lastSyncedAt TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS delivery_notes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierId INTEGER NOT NULL,
  deliveryDate TEXT NOT NULL,
  totalAmount REAL NOT NULL,
  originalFileName TEXT NOT NULL,
  fileType TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(supplierId) REFERENCES suppliers(id)
);

CREATE TABLE IF NOT EXISTS delivery_note_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  deliveryNoteId INTEGER NOT NULL,
  lineNumber INTEGER NOT NULL,
  deliveryDate TEXT,
  documentNumber TEXT,
  productCode TEXT NOT NULL,
  productName TEXT NOT NULL,
  quantity REAL NOT NULL,
  unitPrice REAL NOT NULL,
  amount REAL NOT NULL,
  remarks TEXT,
  FOREIGN KEY(deliveryNoteId) REFERENCES delivery_notes(id)
);
CREATE INDEX IF NOT EXISTS idx_delivery_note_items_note ON delivery_note_items(deliveryNoteId);
CREATE INDEX IF NOT EXISTS idx_delivery_note_items_code ON delivery_note_items(productCode);

CREATE TABLE IF NOT EXISTS pos_departments (
  departmentId TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  parentDepartmentId TEXT,
  level INTEGER,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pos_products (
  productCode TEXT PRIMARY KEY,
  productId TEXT,
  departmentId TEXT,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) AddSupplier(code *string, name string, paymentTerms *string) (internal.Supplier, error) {
	result, err := d.conn.Exec(`
INSERT INTO suppliers (code, name, paymentTerms) VALUES (?, ?, ?)
`, code, name, paymentTerms)
	if err != nil {
		return internal.Supplier{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return internal.Supplier{}, err
	}
	return internal.Supplier{ID: int(id), Code: code, Name: name, PaymentTerms: paymentTerms, Active: true}, nil
}

func (d *DB) GetSupplier(id int) (*internal.Supplier, error) {
	var s internal.Supplier
	var active int
	err := d.conn.QueryRow(`
SELECT id, code, name, paymentTerms, isActive FROM suppliers WHERE id = ?
`, id).Scan(&s.ID, &s.Code, &s.Name, &s.PaymentTerms, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Active = active != 0
	return &s, nil
}

func (d *DB) ListActiveSuppliers() ([]internal.Supplier, error) {
	rows, err := d.conn.Query(`
SELECT id, code, name, paymentTerms, isActive FROM suppliers WHERE isActive = 1 ORDER BY name ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Supplier
	for rows.Next() {
		var s internal.Supplier
		var active int
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.PaymentTerms, &active); err != nil {
			return nil, err
		}
		s.Active = active != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveTemplate inserts or updates the template for (supplier, source type).
// The natural-key conflict clause keeps at most one row per pair and
// preserves the existing row's id on update.
func (d *DB) SaveTemplate(tmpl internal.FormatTemplate) (internal.FormatTemplate, error) {
	if err := tmpl.Validate(); err != nil {
		return internal.FormatTemplate{}, err
	}

	mappingJSON, err := json.Marshal(tmpl.Mapping)
	if err != nil {
		return internal.FormatTemplate{}, err
	}

	var headerRow, dataStartRow *int
	if tmpl.Layout != nil {
		headerRow = &tmpl.Layout.HeaderRowIndex
		dataStartRow = &tmpl.Layout.DataStartRowIndex
	}

	_, err = d.conn.Exec(`
INSERT INTO format_templates (supplierId, sourceType, mappingJson, headerRowIndex, dataStartRowIndex)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(supplierId, sourceType) DO UPDATE SET
  mappingJson=excluded.mappingJson,
  headerRowIndex=excluded.headerRowIndex,
  dataStartRowIndex=excluded.dataStartRowIndex,
  updatedAt=CURRENT_TIMESTAMP
`, tmpl.SupplierID, string(tmpl.SourceType), string(mappingJSON), headerRow, dataStartRow)
	if err != nil {
		return internal.FormatTemplate{}, err
	}

	saved, err := d.FindActiveTemplate(tmpl.SupplierID, tmpl.SourceType)
	if err != nil {
		return internal.FormatTemplate{}, err
	}
	if saved == nil {
		return internal.FormatTemplate{}, errors.New("failed to save template")
	}
	return *saved, nil
}

// FindActiveTemplate returns the template for (supplier, source type), or
// nil when none is registered. Should duplicates ever exist the most
// recently updated row wins.
func (d *DB) FindActiveTemplate(supplierID int, sourceType internal.SourceType) (*internal.FormatTemplate, error) {
	var tmpl internal.FormatTemplate
	var mappingJSON string
	var headerRow, dataStartRow *int
	var srcType string
	err := d.conn.QueryRow(`
SELECT id, supplierId, sourceType, mappingJson, headerRowIndex, dataStartRowIndex, updatedAt
FROM format_templates
WHERE supplierId = ? AND sourceType = ?
ORDER BY updatedAt DESC, id DESC
LIMIT 1
`, supplierID, string(sourceType)).Scan(
		&tmpl.ID, &tmpl.SupplierID, &srcType, &mappingJSON, &headerRow, &dataStartRow, &tmpl.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tmpl.SourceType = internal.SourceType(srcType)
	if err := json.Unmarshal([]byte(mappingJSON), &tmpl.Mapping); err != nil {
		return nil, fmt.Errorf("corrupt template mapping for id=%d: %w", tmpl.ID, err)
	}
	if tmpl.SourceType == internal.SourceSpreadsheet && headerRow != nil && dataStartRow != nil {
		tmpl.Layout = &internal.SpreadsheetLayout{HeaderRowIndex: *headerRow, DataStartRowIndex: *dataStartRow}
	}
	return &tmpl, nil
}

func (d *DB) CountTemplates(supplierID int, sourceType internal.SourceType) (int, error) {
	var count int
	err := d.conn.QueryRow(`
SELECT COUNT(*) FROM format_templates WHERE supplierId = ? AND sourceType = ?
`, supplierID, string(sourceType)).Scan(&count)
	return count, err
}

func (d *DB) GetSyncCursor() (*internal.SyncCursor, error) {
	var cursor internal.SyncCursor
	err := d.conn.QueryRow(`
SELECT watchFolderId, startPageToken, pageToken, lastSyncedAt FROM sync_state WHERE id = 1
`).Scan(&cursor.WatchFolderID, &cursor.StartPageToken, &cursor.PageToken, &cursor.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// SaveSyncCursor persists the singleton cursor row in one statement, so the
// resume token never advances partially.
func (d *DB) SaveSyncCursor(cursor internal.SyncCursor) error {
	_, err := d.conn.Exec(`
INSERT INTO sync_state (id, watchFolderId, startPageToken, pageToken, lastSyncedAt, updatedAt)
VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  watchFolderId=excluded.watchFolderId,
  startPageToken=excluded.startPageToken,
  pageToken=excluded.pageToken,
  lastSyncedAt=CURRENT_TIMESTAMP,
  updatedAt=CURRENT_TIMESTAMP
`, cursor.WatchFolderID, cursor.StartPageToken, cursor.PageToken)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
