package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/2beens/runcoach/internal/telemetry/metrics"
	"github.com/2beens/runcoach/internal/telemetry/tracing"
	"github.com/2beens/runcoach/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultFolderName = "runcoach-backup"
	DefaultKeep       = 14

	archivePrefix = "runcoach-data-"
	archiveLayout = "2006-01-02T150405"
)

type Params struct {
	Store          Store
	DataDir        string
	TempDir        string
	Keep           int
	MetricsManager *metrics.Manager
}

// Service archives the data directory and uploads it to a Store,
// keeping only the newest Keep archives.
type Service struct {
	store          Store
	dataDir        string
	tempDir        string
	keep           int
	metricsManager *metrics.Manager
	now            func() time.Time
}

func NewService(params Params) *Service {
	keep := params.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	tempDir := params.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Service{
		store:          params.Store,
		dataDir:        params.DataDir,
		tempDir:        tempDir,
		keep:           keep,
		metricsManager: params.MetricsManager,
		now:            time.Now,
	}
}

// DoBackup uploads one archive of the data dir and returns its name.
func (s *Service) DoBackup(ctx context.Context) (name string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.do")
	start := s.now()
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
		if s.metricsManager == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metricsManager.CounterBackups.WithLabelValues(outcome).Inc()
		s.metricsManager.HistBackupDuration.Observe(time.Since(start).Seconds())
	}()

	if exists, err := pkg.PathExists(s.dataDir, true); err != nil {
		return "", fmt.Errorf("check data dir: %w", err)
	} else if !exists {
		return "", fmt.Errorf("data dir %s does not exist", s.dataDir)
	}

	name = archivePrefix + s.now().UTC().Format(archiveLayout) + ".tar.gz"
	archivePath := filepath.Join(s.tempDir, name)

	archive, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(archivePath); rmErr != nil {
			log.Errorf("remove temp archive %s: %s", archivePath, rmErr)
		}
	}()

	if err := pkg.Compress(s.dataDir, archive); err != nil {
		archive.Close()
		return "", fmt.Errorf("compress data dir: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		archive.Close()
		return "", fmt.Errorf("rewind archive: %w", err)
	}

	fileID, err := s.store.Upload(ctx, name, archive)
	archive.Close()
	if err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	log.Printf("backup %s uploaded: %s", name, fileID)

	if err := s.prune(ctx); err != nil {
		// the new archive is stored, a failed prune only leaves extra files
		log.Errorf("prune old backups: %s", err)
	}

	return name, nil
}

func (s *Service) prune(ctx context.Context) error {
	files, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	if len(files) <= s.keep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	for _, f := range files[s.keep:] {
		if err := s.store.Delete(ctx, f.ID); err != nil {
			return fmt.Errorf("delete %s: %w", f.Name, err)
		}
		log.Debugf("old backup %s deleted", f.Name)
	}
	return nil
}

// Loop backs up every interval until ctx is done.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugln("backup loop stopped")
			return
		case <-ticker.C:
			if _, err := s.DoBackup(ctx); err != nil {
				log.Errorf("scheduled backup: %s", err)
			}
		}
	}
}
