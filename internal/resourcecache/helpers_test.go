package resourcecache

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// newTestCache returns a Cache rooted in a fresh temp dir and destroyed on cleanup.
func newTestCache(t *testing.T, opts Options) (*Cache, string) {
	t.Helper()
	if opts.TempRoot == "" {
		opts.TempRoot = t.TempDir()
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}
	c := New(opts)
	t.Cleanup(c.Destroy)
	return c, opts.TempRoot
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// waitForWaiters blocks until n callers are queued on directory creation.
func waitForWaiters(t *testing.T, c *Cache, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		queued := len(c.dir.waiters)
		c.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued callers", n)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// flakyMkdirFs fails the first `failures` Mkdir calls with EACCES.
// A non-nil gate holds every Mkdir until it is closed.
type flakyMkdirFs struct {
	afero.Fs
	gate     chan struct{}
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyMkdirFs) Mkdir(name string, perm os.FileMode) error {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.failures.Add(-1) >= 0 {
		return &os.PathError{Op: "mkdir", Path: name, Err: syscall.EACCES}
	}
	return f.Fs.Mkdir(name, perm)
}

// failingOpenFs refuses to create files while still allowing directories.
type failingOpenFs struct {
	afero.Fs
}

func (f failingOpenFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: syscall.ENOSPC}
}

// gatedFs holds every OpenFile call until release is closed.
type gatedFs struct {
	afero.Fs
	opening chan string
	release chan struct{}
}

func newGatedFs() *gatedFs {
	return &gatedFs{
		Fs:      afero.NewOsFs(),
		opening: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	g.opening <- name
	<-g.release
	return g.Fs.OpenFile(name, flag, perm)
}

// countingFs records every mutating call.
type countingFs struct {
	afero.Fs
	calls atomic.Int32
}

func (c *countingFs) Mkdir(name string, perm os.FileMode) error {
	c.calls.Add(1)
	return c.Fs.Mkdir(name, perm)
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	c.calls.Add(1)
	return c.Fs.OpenFile(name, flag, perm)
}

func (c *countingFs) Remove(name string) error {
	c.calls.Add(1)
	return c.Fs.Remove(name)
}

func (c *countingFs) RemoveAll(path string) error {
	c.calls.Add(1)
	return c.Fs.RemoveAll(path)
}

// failingWriteFs creates real files whose Write always fails with ENOSPC.
// Each created name is sent on opened.
type failingWriteFs struct {
	afero.Fs
	opened chan string
}

func newFailingWriteFs() *failingWriteFs {
	return &failingWriteFs{Fs: afero.NewOsFs(), opened: make(chan string, 16)}
}

func (f *failingWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	f.opened <- name
	return failingWriteFile{File: file}, nil
}

type failingWriteFile struct {
	afero.File
}

func (w failingWriteFile) Write(p []byte) (int, error) {
	return 0, &os.PathError{Op: "write", Path: w.Name(), Err: syscall.ENOSPC}
}

// denyRemoveFs refuses to remove cache files with EACCES.
type denyRemoveFs struct {
	afero.Fs
}

func (d denyRemoveFs) Remove(name string) error {
	if strings.HasSuffix(name, ".tmp") {
		return &os.PathError{Op: "remove", Path: name, Err: syscall.EACCES}
	}
	return d.Fs.Remove(name)
}
