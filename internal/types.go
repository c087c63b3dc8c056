package internal

type SourceType string

const (
	SourceSpreadsheet SourceType = "spreadsheet"
	SourceDelimited   SourceType = "delimited-text"
)

// FileKind is the queue-level classification of a discovered file.
type FileKind string

const (
	FileSpreadsheet FileKind = "spreadsheet"
	FileDelimited   FileKind = "csv"
	FilePDF         FileKind = "pdf"
)

// LineItem is one purchased product row, independent of source format.
type LineItem struct {
	LineNumber     int
	DeliveryDate   string // ISO date, "" when absent
	DocumentNumber *string
	ProductCode    string
	ProductName    string
	Quantity       float64
	UnitPrice      float64
	Amount         float64
	Remarks        *string
}

// Document is one source file's extraction result.
type Document struct {
	SupplierID       int
	SupplierName     *string
	DeliveryDate     string
	TotalAmount      float64
	OriginalFileName string
	SourceKind       FileKind
	Items            []LineItem
	Warnings         []string
}

type Supplier struct {
	ID           int
	Code         *string
	Name         string
	PaymentTerms *string
	Active       bool
}

// Canonical field names a column mapping may bind.
const (
	FieldProductCode    = "product_code"
	FieldProductName    = "product_name"
	FieldQuantity       = "quantity"
	FieldUnitPrice      = "unit_price"
	FieldAmount         = "amount"
	FieldDeliveryDate   = "delivery_date"
	FieldDocumentNumber = "document_number"
	FieldRemarks        = "remarks"
)

// ColumnRef points a canonical field at a source column: a column letter
// (A, B, ...) for spreadsheets, a literal header string for delimited text.
type ColumnRef struct {
	Column     string `json:"column"`
	HeaderName string `json:"header_name,omitempty"`
}

type ColumnMapping map[string]ColumnRef

// SpreadsheetLayout carries the row offsets that only make sense for
// spreadsheet sources.
type SpreadsheetLayout struct {
	HeaderRowIndex    int `json:"header_row_index"`
	DataStartRowIndex int `json:"data_start_row_index"`
}

// FormatTemplate is the per-(supplier, source type) column mapping.
// Layout is non-nil exactly when SourceType is SourceSpreadsheet.
type FormatTemplate struct {
	ID         int
	SupplierID int
	SourceType SourceType
	Mapping    ColumnMapping
	Layout     *SpreadsheetLayout
	UpdatedAt  string
}

type ImportStatus string

const (
	StatusPending         ImportStatus = "pending"
	StatusPendingSupplier ImportStatus = "pending_supplier"
	StatusReady           ImportStatus = "ready"
	StatusProcessing      ImportStatus = "processing"
	StatusProcessed       ImportStatus = "processed"
	StatusError           ImportStatus = "error"
)

// QueueItem is one remote file's journey through ingestion, keyed by the
// provider's stable file id.
type QueueItem struct {
	ID                   int
	FileID               string
	FileName             string
	MimeType             *string
	MD5Checksum          *string
	SupplierID           *int
	SupplierConfirmed    bool
	InferredSupplierCode *string
	InferredSupplierName *string
	SourceFolderID       *string
	SourceFolderName     *string
	SourcePath           *string
	Size                 *int64
	RemoteModifiedTime   *string
	Status               ImportStatus
	ErrorMessage         *string
	LastErrorAt          *string
	ProcessedAt          *string
	CreatedAt            string
	UpdatedAt            string
}

// SyncCursor is the singleton change-feed resume state.
type SyncCursor struct {
	WatchFolderID  string
	StartPageToken *string
	PageToken      *string
	LastSyncedAt   *string
}

// SupplierMatch is the result of inferring a file's owning supplier.
// SupplierID is nil when no confident match was found; the inferred fields
// may still carry a best-guess hint for the operator.
type SupplierMatch struct {
	SupplierID   *int
	InferredCode *string
	InferredName *string
}

type PosDepartment struct {
	DepartmentID       string
	Name               string
	ParentDepartmentID *string
	Level              *int
}

type PosProduct struct {
	ProductCode  string
	ProductID    *string
	DepartmentID *string
}
