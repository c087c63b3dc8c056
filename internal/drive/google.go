package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"nouhin/internal/config"
)

const fileFields = "id, name, mimeType, md5Checksum, size, modifiedTime, parents, trashed"

// GoogleProvider talks to Google Drive with a long-lived refresh token.
type GoogleProvider struct {
	service *gdrive.Service
}

func NewGoogleProvider(cfg config.Config) (*GoogleProvider, error) {
	if err := cfg.Require("DRIVE_CLIENT_ID", cfg.DriveClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("DRIVE_CLIENT_SECRET", cfg.DriveClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("DRIVE_REFRESH_TOKEN", cfg.DriveRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.DriveClientID,
		ClientSecret: cfg.DriveClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.DriveRedirectURI,
		Scopes:       []string{gdrive.DriveScope},
	}

	tokenSource := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.DriveRefreshToken})
	svc, err := gdrive.NewService(context.Background(), option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &GoogleProvider{service: svc}, nil
}

func (p *GoogleProvider) GetStartPageToken() (string, error) {
	resp, err := p.service.Changes.GetStartPageToken().SupportsAllDrives(true).Do()
	if err != nil {
		return "", err
	}
	return resp.StartPageToken, nil
}

func (p *GoogleProvider) ListChanges(pageToken string) (ChangePage, error) {
	resp, err := p.service.Changes.List(pageToken).
		Spaces("drive").
		Fields(googleapi.Field("nextPageToken, newStartPageToken, changes(fileId, removed, file(" + fileFields + "))")).
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		PageSize(100).
		Do()
	if err != nil {
		return ChangePage{}, err
	}

	page := ChangePage{
		NextPageToken:     resp.NextPageToken,
		NewStartPageToken: resp.NewStartPageToken,
	}
	for _, change := range resp.Changes {
		entry := Change{FileID: change.FileId, Removed: change.Removed}
		if change.File != nil {
			entry.File = toFileInfo(change.File)
			if entry.File.Trashed {
				entry.Removed = true
			}
		}
		page.Changes = append(page.Changes, entry)
	}
	return page, nil
}

func (p *GoogleProvider) GetFolder(id string) (*Folder, error) {
	file, err := p.service.Files.Get(id).
		Fields("id, name, parents").
		SupportsAllDrives(true).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Folder{ID: file.Id, Name: file.Name, Parents: file.Parents}, nil
}

func (p *GoogleProvider) ListFolderChildren(folderID string) ([]FileInfo, error) {
	var out []FileInfo
	pageToken := ""
	for {
		call := p.service.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
			IncludeItemsFromAllDrives(true).
			SupportsAllDrives(true).
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, file := range resp.Files {
			out = append(out, *toFileInfo(file))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (p *GoogleProvider) Download(fileID string) ([]byte, error) {
	resp, err := p.service.Files.Get(fileID).SupportsAllDrives(true).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Move reparents a file under the destination folder, detaching it from all
// current parents.
func (p *GoogleProvider) Move(fileID, destFolderID string) error {
	file, err := p.service.Files.Get(fileID).
		Fields("parents").
		SupportsAllDrives(true).
		Do()
	if err != nil {
		return err
	}

	call := p.service.Files.Update(fileID, nil).
		AddParents(destFolderID).
		SupportsAllDrives(true)
	if len(file.Parents) > 0 {
		call = call.RemoveParents(strings.Join(file.Parents, ","))
	}
	_, err = call.Do()
	return err
}

func toFileInfo(file *gdrive.File) *FileInfo {
	info := &FileInfo{
		ID:      file.Id,
		Name:    file.Name,
		Parents: file.Parents,
		Trashed: file.Trashed,
	}
	if file.MimeType != "" {
		mimeType := file.MimeType
		info.MimeType = &mimeType
	}
	if file.Md5Checksum != "" {
		checksum := file.Md5Checksum
		info.MD5Checksum = &checksum
	}
	if file.Size > 0 {
		size := file.Size
		info.Size = &size
	}
	if file.ModifiedTime != "" {
		modified := file.ModifiedTime
		info.ModifiedTime = &modified
	}
	return info
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}
