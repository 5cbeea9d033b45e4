package cache

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"clinicaltrials-downloader/internal/models"
)

// Writer streams studies into a new dump. The dump is built in a temp file
// and only replaces the previous one when Commit succeeds, so a failed or
// aborted download never clobbers a good cache.
type Writer struct {
	cache *Cache
	lock  *flock.Flock
	file  *os.File
	zw    *gzip.Writer
	count int64
	done  bool
}

// NewWriter acquires the dump lock and opens the temp file. Callers must
// finish with Commit or Abort.
func (c *Cache) NewWriter() (*Writer, error) {
	lock := flock.New(filepath.Join(c.dir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquire dump lock")
	}
	if !locked {
		return nil, errors.New("another download holds the dump lock")
	}

	f, err := os.Create(filepath.Join(c.dir, tempName))
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrap(err, "create temp dump")
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte("[")); err != nil {
		_ = f.Close()
		_ = lock.Unlock()
		return nil, errors.Wrap(err, "start dump array")
	}

	return &Writer{cache: c, lock: lock, file: f, zw: zw}, nil
}

// Add appends one study to the dump.
func (w *Writer) Add(study models.Study) error {
	if w.count > 0 {
		if _, err := w.zw.Write([]byte(",")); err != nil {
			return errors.Wrap(err, "write separator")
		}
	}
	if _, err := w.zw.Write(study); err != nil {
		return errors.Wrap(err, "write study")
	}
	w.count++
	return nil
}

// Count returns the number of studies written so far.
func (w *Writer) Count() int64 { return w.count }

// Commit closes the temp dump and moves it into place.
func (w *Writer) Commit() error {
	if w.done {
		return errors.New("writer already finished")
	}
	w.done = true

	var result *multierror.Error
	if _, err := w.zw.Write([]byte("]")); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.zw.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.file.Sync(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := w.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		_ = os.Remove(w.file.Name())
		_ = w.lock.Unlock()
		return errors.Wrap(err, "finish dump")
	}

	if err := os.Rename(w.file.Name(), w.cache.ResultsPath()); err != nil {
		_ = os.Remove(w.file.Name())
		_ = w.lock.Unlock()
		return errors.Wrap(err, "install dump")
	}
	return errors.Wrap(w.lock.Unlock(), "release dump lock")
}

// Abort discards the partial dump. Safe to call after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.zw.Close()
	_ = w.file.Close()
	_ = os.Remove(w.file.Name())
	_ = w.lock.Unlock()
}
