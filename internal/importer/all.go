package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wesm/mboxvault/internal/store"
)

// ErrArchiveDirMissing is returned by ProcessAll when the archive
// directory does not exist.
var ErrArchiveDirMissing = errors.New("archive directory does not exist")

// ArchiveFailure records an archive that could not be processed.
type ArchiveFailure struct {
	Archive string
	Err     error
}

// BatchSummary describes a ProcessAll run.
type BatchSummary struct {
	Archives       []*Summary // completed archives, in processing order
	Failed         []ArchiveFailure
	Moved          []string // destination paths of moved archives
	Processed      int
	Succeeded      int
	FailedMessages int
	Duration       time.Duration
}

// ListArchives returns the files in dir whose names end with ext
// (case-insensitive), sorted by name.
func ListArchives(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveDirMissing, dir)
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	ext = strings.ToLower(ext)
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ProcessAll ingests every archive in archiveDir in name order. A
// completed archive is moved into processedDir whatever its per-message
// failure count; an archive that fails is logged, recorded and left in
// place, and the run carries on with the next one. Cancellation stops the
// run after the current archive's partial work is committed.
func (p *Pipeline) ProcessAll(ctx context.Context, st *store.Store, archiveDir, processedDir string) (*BatchSummary, error) {
	start := time.Now()
	paths, err := ListArchives(archiveDir, p.opts.Extension)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}

	bs := &BatchSummary{}
	defer func() { bs.Duration = time.Since(start) }()

	for _, path := range paths {
		p.log.Info("processing archive", "archive", path)
		sum, err := p.ProcessArchive(ctx, st, path)
		if sum != nil {
			bs.Processed += sum.Processed
			bs.Succeeded += sum.Succeeded
			bs.FailedMessages += sum.Failed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return bs, ctxErr
		}
		if err != nil {
			p.log.Error("archive failed", "archive", path, "error", err)
			bs.Failed = append(bs.Failed, ArchiveFailure{Archive: path, Err: err})
			continue
		}
		bs.Archives = append(bs.Archives, sum)

		dest := filepath.Join(processedDir, filepath.Base(path))
		if err := moveFile(path, dest); err != nil {
			p.log.Error("failed to move archive", "archive", path, "dest", dest, "error", err)
			bs.Failed = append(bs.Failed, ArchiveFailure{Archive: path, Err: fmt.Errorf("move archive: %w", err)})
			continue
		}
		bs.Moved = append(bs.Moved, dest)
		p.log.Info("archive completed",
			"archive", path,
			"dest", dest,
			"processed", sum.Processed,
			"failed", sum.Failed,
			"duration", sum.Duration.Round(time.Millisecond),
		)
	}
	return bs, nil
}

// moveFile renames src to dst, copying across filesystems when a rename is
// not possible. An existing dst is replaced.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
