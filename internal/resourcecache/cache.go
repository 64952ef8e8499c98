package resourcecache

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// DefaultPrefix 为临时目录名前缀：<TempRoot>/<Prefix>_<pid>_<counter>/。
	DefaultPrefix = "resourcecache"
	// DefaultBufferLimit 为目标文件就绪前最多缓冲的响应字节数。
	DefaultBufferLimit int64 = 4 << 20

	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// Options 控制 Cache 的文件系统、网络与日志依赖，零值即可使用。
type Options struct {
	TempRoot    string
	Prefix      string
	Fs          afero.Fs
	Client      *http.Client
	Logger      *logrus.Logger
	BufferLimit int64
}

// Cache 拥有一个惰性创建的临时目录以及其中的全部缓存文件。
type Cache struct {
	root        string
	prefix      string
	pid         int
	fs          afero.Fs
	client      *http.Client
	logger      *logrus.Logger
	bufferLimit int64

	mu        sync.Mutex
	dir       dirState
	nextID    uint64
	tracked   map[string]struct{}
	destroyed bool
}

// New 构建 Cache 并登记到进程退出清理表；此时不会触碰文件系统。
func New(opts Options) *Cache {
	root := opts.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := opts.BufferLimit
	if limit <= 0 {
		limit = DefaultBufferLimit
	}

	client := http.Client{}
	if opts.Client != nil {
		client = *opts.Client
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &Cache{
		root:        root,
		prefix:      prefix,
		pid:         os.Getpid(),
		fs:          fsys,
		client:      &client,
		logger:      logger,
		bufferLimit: limit,
		tracked:     make(map[string]struct{}),
	}
	register(c)
	return c
}

// FromBytes 将 data 原样写入新的缓存文件并返回其路径。
func (c *Cache) FromBytes(ctx context.Context, data []byte) (string, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", asWriteError(err)
	}
	name, err := c.allocate(dir)
	if err != nil {
		return "", err
	}

	err = c.writeFile(name, data)
	if !c.isTracked(name) {
		c.discard(name)
		return "", ErrDestroyed
	}
	if err != nil {
		c.discard(name)
		return "", &WriteError{Path: name, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"action": "cache_from_bytes",
		"path":   name,
		"size":   humanize.Bytes(uint64(len(data))),
	}).Debug("resource cached")
	return name, nil
}

func (c *Cache) writeFile(name string, data []byte) error {
	f, err := c.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Release 注销并删除单个缓存文件。未登记的路径返回 ErrNotTracked 且不会访问文件系统；
// 文件已不存在视为成功。
func (c *Cache) Release(path string) error {
	c.mu.Lock()
	_, ok := c.tracked[path]
	delete(c.tracked, path)
	c.mu.Unlock()
	if !ok {
		return ErrNotTracked
	}

	if err := c.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &DeleteError{Path: path, Err: err}
	}
	c.logger.WithFields(logrus.Fields{
		"action": "release",
		"path":   path,
	}).Debug("resource released")
	return nil
}

// Destroy 同步删除所有仍登记的文件及临时目录，单个失败不会中断其余删除。
// 目录从未创建时不做任何文件系统操作。可重复调用。
func (c *Cache) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	ready := c.dir.phase == dirReady
	dir := c.dir.path
	files := make([]string, 0, len(c.tracked))
	for name := range c.tracked {
		files = append(files, name)
	}
	c.tracked = make(map[string]struct{})
	c.mu.Unlock()

	unregister(c)
	if !ready {
		return
	}

	sort.Strings(files)
	for _, name := range files {
		if err := c.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "destroy",
				"path":   name,
			}).Warn("cache file removal failed")
		}
	}
	if err := c.fs.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "destroy",
			"path":   dir,
		}).Warn("cache directory removal failed")
	}
}

// Tracked 返回当前登记的文件路径快照（已排序）。
func (c *Cache) Tracked() []string {
	c.mu.Lock()
	files := make([]string, 0, len(c.tracked))
	for name := range c.tracked {
		files = append(files, name)
	}
	c.mu.Unlock()
	sort.Strings(files)
	return files
}

// DirectoryPath 返回已创建的目录；尚未就绪时 ok 为 false。
func (c *Cache) DirectoryPath() (path string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dir.phase != dirReady {
		return "", false
	}
	return c.dir.path, true
}

// allocate 分配下一个文件编号并立即登记，编号永不复用。
func (c *Cache) allocate(dir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return "", ErrDestroyed
	}
	name := filepath.Join(dir, strconv.FormatUint(c.nextID, 10)+".tmp")
	c.nextID++
	c.tracked[name] = struct{}{}
	return name, nil
}

func (c *Cache) isTracked(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tracked[name]
	return ok
}

// discard 注销并尽力删除写入失败的文件；缓存已销毁时顺带删除目录。
func (c *Cache) discard(name string) {
	c.mu.Lock()
	delete(c.tracked, name)
	destroyed := c.destroyed
	c.mu.Unlock()
	if err := c.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WithError(err).WithField("path", name).Debug("discard partial file failed")
	}
	if destroyed {
		_ = c.fs.Remove(filepath.Dir(name))
	}
}

func asWriteError(err error) error {
	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return &WriteError{Err: err}
	}
	return err
}
