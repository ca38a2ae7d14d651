package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/shogo82148/go-retry"
)

// FilePersister keeps the snapshot in a local file. In ModeIDs the file is
// a newline-delimited list of item ids; in ModeRecords every line is one
// JSON-encoded Record. A sibling lock file guards against two watchers
// sharing the same path.
type FilePersister struct {
	path     string
	lockPath string
	mode     Mode
	log      *slog.Logger
	policy   retry.Policy
}

// FileOption configures a FilePersister.
type FileOption func(*FilePersister)

// WithLockPath overrides the default "<path>.lock" lock file.
func WithLockPath(p string) FileOption {
	return func(f *FilePersister) {
		f.lockPath = p
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *FilePersister) {
		f.log = l
	}
}

// NewFilePersister creates a file-backed persister for mode.
func NewFilePersister(path string, mode Mode, opts ...FileOption) *FilePersister {
	f := &FilePersister{
		path:     path,
		lockPath: path + ".lock",
		mode:     mode,
		log:      slog.Default(),
		policy: retry.Policy{
			MinDelay: 100 * time.Millisecond,
			MaxDelay: 1 * time.Second,
			MaxCount: 10,
			Jitter:   35 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load implements Persister. A missing file is a cold start.
func (f *FilePersister) Load(ctx context.Context) ([]Record, error) {
	var records []Record
	err := f.locked(ctx, func() error {
		fp, err := os.Open(f.path)
		if errors.Is(err, fs.ErrNotExist) {
			f.log.Info("no snapshot file, starting cold", "path", f.path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("opening snapshot file: %w", err)
		}
		defer fp.Close()

		records, err = f.decode(fp)
		return err
	})
	return records, err
}

// Save implements Persister. The file is replaced atomically.
func (f *FilePersister) Save(ctx context.Context, records []Record) error {
	return f.locked(ctx, func() error {
		tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
		if err != nil {
			return fmt.Errorf("creating temp snapshot file: %w", err)
		}
		defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

		w := bufio.NewWriter(tmp)
		if err := f.encode(w, records); err != nil {
			tmp.Close()
			return err
		}
		if err := w.Flush(); err != nil {
			tmp.Close()
			return fmt.Errorf("writing snapshot file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("closing snapshot file: %w", err)
		}
		if err := os.Rename(tmp.Name(), f.path); err != nil {
			return fmt.Errorf("replacing snapshot file: %w", err)
		}
		f.log.Debug("snapshot saved", "path", f.path, "records", len(records))
		return nil
	})
}

func (f *FilePersister) encode(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if f.mode == ModeIDs {
			if _, err := fmt.Fprintln(w, r.ID); err != nil {
				return fmt.Errorf("writing snapshot id: %w", err)
			}
			continue
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding snapshot record %s: %w", r.ID, err)
		}
	}
	return nil
}

func (f *FilePersister) decode(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lineNo int
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		// A records file read in ModeIDs keeps its ids rather than turning
		// every JSON line into an unknown id.
		if f.mode == ModeIDs && !strings.HasPrefix(line, "{") {
			records = append(records, Record{ID: line})
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.ID == "" {
			f.log.Warn("skipping unreadable snapshot line", "path", f.path, "line", lineNo, "error", err)
			continue
		}
		if f.mode == ModeIDs {
			rec = Record{ID: rec.ID}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return records, nil
}

func (f *FilePersister) locked(ctx context.Context, fn func() error) error {
	fileLock := flock.New(f.lockPath)

	retrier := f.policy.Start(ctx)
	var err error
	var locked bool
	for retrier.Continue() {
		locked, err = fileLock.TryLock()
		if err != nil {
			f.log.Debug("snapshot lock attempt failed", "lock", f.lockPath, "error", err)
			continue
		}
		if locked {
			break
		}
	}
	if !locked {
		if err == nil {
			err = errors.New("held by another process")
		}
		return fmt.Errorf("cannot lock %s: %w", f.lockPath, err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			f.log.Warn("snapshot unlock failed", "lock", f.lockPath, "error", err)
		}
	}()

	return fn()
}
