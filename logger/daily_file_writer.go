package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrWriterClosed is returned by DailyFileWriter.Write after Close.
var ErrWriterClosed = errors.New("logger: writer is closed")

// DailyFileWriter is an io.Writer appending to {service}_{date}.log in a
// directory, switching to a new file on the first write of each day. It is
// safe for concurrent use.
type DailyFileWriter struct {
	service string
	dir     string
	now     func() time.Time

	mu       sync.Mutex
	file     *os.File
	currDate string
	closed   bool
}

// NewDailyFileWriter opens today's log file in logDir. The directory must
// already exist.
//
// Parameters:
//   - service: Service name used in log file names
//   - logDir: Directory path for log files
//
// Returns:
//   - The writer, or an error if the initial file could not be opened
func NewDailyFileWriter(service string, logDir string) (*DailyFileWriter, error) {
	return newDailyFileWriter(service, logDir, time.Now)
}

func newDailyFileWriter(service, logDir string, now func() time.Time) (*DailyFileWriter, error) {
	w := &DailyFileWriter{service: service, dir: logDir, now: now}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateLocked(w.now().Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	return w, nil
}

// Write implements io.Writer.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWriterClosed
	}

	if date := w.now().Format("2006-01-02"); date != w.currDate {
		if err := w.rotateLocked(date); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	return w.file.Write(p)
}

// CurrentLogFile returns the path of the file currently written to, or "" once
// the writer is closed.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}

	return w.file.Name()
}

// Close closes the current file. It is safe to call multiple times.
func (w *DailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// rotateLocked switches to the file for date; caller must hold w.mu.
func (w *DailyFileWriter) rotateLocked(date string) error {
	filename := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", filename, err)
	}

	if w.file != nil {
		_ = w.file.Close()
	}

	w.file = file
	w.currDate = date
	return nil
}
