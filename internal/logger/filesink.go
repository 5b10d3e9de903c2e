package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fileSinkBuffer   = 32 * 1024
	fileSinkInterval = 5 * time.Second
)

// FileSink appends log lines to a file through a buffer that is flushed on a
// timer, on Flush and on Close. A recording run logs a few lines per second,
// so per-line syscalls are wasted work.
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	buf    *bufio.Writer
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// OpenFileSink creates path (and its directory) for appending.
func OpenFileSink(path string) (*FileSink, error) {
	return openFileSink(path, fileSinkInterval)
}

func openFileSink(path string, interval time.Duration) (*FileSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	s := &FileSink{
		f:      f,
		buf:    bufio.NewWriterSize(f, fileSinkBuffer),
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *FileSink) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			_ = s.Flush()
		}
	}
}

// Write buffers p. Writes after Close fail.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

// Flush hands buffered bytes to the OS.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return s.buf.Flush()
}

// Close stops the timer, then flushes, syncs and closes the file. Calling it
// again returns nil.
func (s *FileSink) Close() error {
	var err error
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.stop)
		<-s.done

		s.mu.Lock()
		defer s.mu.Unlock()
		err = errors.Join(s.buf.Flush(), s.f.Sync(), s.f.Close())
		s.buf, s.f = nil, nil
	})
	return err
}
