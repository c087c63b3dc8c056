package drive

// FileInfo carries the remote metadata the importer cares about.
type FileInfo struct {
	ID           string
	Name         string
	MimeType     *string
	MD5Checksum  *string
	Size         *int64
	ModifiedTime *string
	Parents      []string
	Trashed      bool
}

// Change is one entry from the remote change feed. Removed covers both
// deletion and trashing; File is nil for removals.
type Change struct {
	FileID  string
	Removed bool
	File    *FileInfo
}

// ChangePage is one page of the change feed. Exactly one of NextPageToken
// and NewStartPageToken is set: a continuation mid-listing, or the resume
// token for the next cycle once the listing is exhausted.
type ChangePage struct {
	Changes           []Change
	NextPageToken     string
	NewStartPageToken string
}

// Folder is the slice of folder metadata needed to walk ancestries.
type Folder struct {
	ID      string
	Name    string
	Parents []string
}

// Provider abstracts the remote file store so polling and processing can be
// tested against a fake.
type Provider interface {
	GetStartPageToken() (string, error)
	ListChanges(pageToken string) (ChangePage, error)
	GetFolder(id string) (*Folder, error)
	ListFolderChildren(folderID string) ([]FileInfo, error)
	Download(fileID string) ([]byte, error)
	Move(fileID, destFolderID string) error
}
