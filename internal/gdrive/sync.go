// Package gdrive mirrors the daily interaction journal into a Google Drive
// folder as Google Docs.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const docPrefix = "callscribe-journal"

type uploader interface {
	Create(name, folderID string, media io.Reader) (string, error)
	Update(fileID string, media io.Reader) error
}

type driveUploader struct {
	service *drive.Service
}

func (d driveUploader) Create(name, folderID string, media io.Reader) (string, error) {
	doc, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{folderID},
	}).Media(media).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveUploader) Update(fileID string, media io.Reader) error {
	_, err := d.service.Files.Update(fileID, &drive.File{}).Media(media).Do()
	return err
}

type Syncer struct {
	up       uploader
	folderID string
	logger   *slog.Logger

	mu      sync.Mutex
	fileIDs map[string]string
	synced  map[string]time.Time
}

func NewSyncer(ctx context.Context, credPath, folderID string, logger *slog.Logger) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveUploader{service: svc}, folderID, logger), nil
}

func newSyncer(up uploader, folderID string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		up:       up,
		folderID: folderID,
		logger:   logger,
		fileIDs:  make(map[string]string),
		synced:   make(map[string]time.Time),
	}
}

// Sync uploads the journal for date, creating its document on first use.
func (s *Syncer) Sync(localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		if err := s.up.Update(fileID, f); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	id, err := s.up.Create(fmt.Sprintf("%s-%s", docPrefix, date), s.folderID, f)
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}
	s.fileIDs[date] = id
	return nil
}

// Run syncs the current journal file every interval while it keeps
// changing, and once more when ctx is canceled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, currentPath func() string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.syncIfChanged(currentPath())
			return
		case <-ticker.C:
			s.syncIfChanged(currentPath())
		}
	}
}

func (s *Syncer) syncIfChanged(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("journal stat failed", "path", path, "error", err)
		}
		return
	}

	s.mu.Lock()
	last, seen := s.synced[path]
	s.mu.Unlock()
	if seen && !info.ModTime().After(last) {
		return
	}

	date := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := s.Sync(path, date); err != nil {
		s.logger.Warn("journal sync failed", "path", path, "error", err)
		return
	}

	s.mu.Lock()
	s.synced[path] = info.ModTime()
	s.mu.Unlock()
	s.logger.Info("journal synced to drive", "date", date)
}
