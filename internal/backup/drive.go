package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// File is a stored backup archive.
type File struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Store is where backup archives end up.
type Store interface {
	Upload(ctx context.Context, name string, content io.Reader) (string, error)
	List(ctx context.Context) ([]File, error)
	Delete(ctx context.Context, id string) error
}

// DriveStore keeps archives in one Google Drive folder.
type DriveStore struct {
	service  *drive.Service
	folderID string
}

// NewDriveStore uses folderID when set, otherwise looks the folder up by
// folderName and creates it when missing.
func NewDriveStore(ctx context.Context, credentialsJSON []byte, folderID, folderName string) (*DriveStore, error) {
	driveService, err := drive.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve drive client: %w", err)
	}

	s := &DriveStore{
		service:  driveService,
		folderID: folderID,
	}
	if folderID != "" {
		log.Debugf("using backups folder ID: %s", folderID)
		return s, nil
	}

	s.folderID, err = s.findOrCreateFolder(ctx, folderName)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DriveStore) FolderID() string {
	return s.folderID
}

func (s *DriveStore) findOrCreateFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("mimeType = '%s' and trashed = false and name = '%s'", folderMimeType, name)
	folders, err := s.service.
		Files.List().
		Q(query).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve folders: %w", err)
	}

	switch len(folders.Files) {
	case 0:
		log.Printf("backups folder %s not found, creating ...", name)
	case 1:
		return folders.Files[0].Id, nil
	default:
		log.Warnf("attention: found %d backups folders, will take the first one: %s", len(folders.Files), folders.Files[0].Id)
		return folders.Files[0].Id, nil
	}

	created, err := s.service.
		Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create backups folder: %w", err)
	}
	log.Printf("new backups folder created: %s", created.Id)
	return created.Id, nil
}

func (s *DriveStore) Upload(ctx context.Context, name string, content io.Reader) (string, error) {
	fileMeta := &drive.File{
		Name:     name,
		MimeType: "application/gzip",
		Parents:  []string{s.folderID},
	}

	created, err := s.service.
		Files.Create(fileMeta).
		Fields("id, parents").
		Media(content).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("%s: create backup file: %w", name, err)
	}
	return created.Id, nil
}

func (s *DriveStore) List(ctx context.Context) ([]File, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", s.folderID, folderMimeType)
	res, err := s.service.
		Files.List().
		Q(query).
		Fields("files(id, name, createdTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(res.Files))
	for _, f := range res.Files {
		createdAt, err := time.Parse(time.RFC3339, f.CreatedTime)
		if err != nil {
			log.Errorf(" ---> error parsing created at for file %s: %s", f.Name, err)
			continue
		}
		files = append(files, File{ID: f.Id, Name: f.Name, CreatedAt: createdAt})
	}
	return files, nil
}

func (s *DriveStore) Delete(ctx context.Context, id string) error {
	return s.service.Files.Delete(id).Context(ctx).Do()
}
