package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

// maxDirAttempts 限制命名冲突时的重试次数。
const maxDirAttempts = 10000

type dirPhase int

const (
	dirUnset dirPhase = iota
	dirPending
	dirReady
)

type dirResult struct {
	path string
	err  error
}

// dirState 只在 Cache.mu 保护下读写，状态仅按 Unset → Pending → Ready 推进；
// 创建失败时回到 Unset，下一次调用重新尝试。
type dirState struct {
	phase   dirPhase
	path    string
	waiters []chan dirResult
}

// Directory 返回本 Cache 共享的临时目录（以路径分隔符结尾），首次调用时创建。
// 并发调用只会触发一次创建，所有等待者按入队顺序收到同一结果。
func (c *Cache) Directory(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return "", ErrDestroyed
	}
	if c.dir.phase == dirReady {
		path := c.dir.path
		c.mu.Unlock()
		return path, nil
	}

	wait := make(chan dirResult, 1)
	c.dir.waiters = append(c.dir.waiters, wait)
	start := c.dir.phase == dirUnset
	c.dir.phase = dirPending
	c.mu.Unlock()

	if start {
		go c.createDirectory()
	}

	select {
	case res := <-wait:
		return res.path, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// createDirectory 在后台完成目录创建，与任何单个调用方的 ctx 无关。
func (c *Cache) createDirectory() {
	res := c.mkdirUnique()

	c.mu.Lock()
	waiters := c.dir.waiters
	c.dir.waiters = nil
	switch {
	case res.err != nil:
		c.dir.phase = dirUnset
	case c.destroyed:
		// Destroy 发生在创建期间，目录已无人负责清理。
		c.dir.phase = dirUnset
		_ = c.fs.Remove(res.path)
		res = dirResult{err: ErrDestroyed}
	default:
		c.dir.phase = dirReady
		c.dir.path = res.path
	}
	c.mu.Unlock()

	if res.err != nil {
		c.logger.WithError(res.err).WithFields(logrus.Fields{
			"action":  "create_directory",
			"waiters": len(waiters),
		}).Warn("cache directory unavailable")
	} else {
		c.logger.WithFields(logrus.Fields{
			"action":  "create_directory",
			"path":    res.path,
			"waiters": len(waiters),
		}).Debug("cache directory created")
	}

	for _, w := range waiters {
		w <- res
	}
}

func (c *Cache) mkdirUnique() dirResult {
	base := filepath.Join(c.root, fmt.Sprintf("%s_%d_", c.prefix, c.pid))
	var lastErr error
	for counter := 0; counter < maxDirAttempts; counter++ {
		candidate := base + strconv.Itoa(counter)
		err := c.fs.Mkdir(candidate, dirPerm)
		if err == nil {
			return dirResult{path: candidate + string(filepath.Separator)}
		}
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		}
		return dirResult{err: &DirectoryError{Path: candidate, Err: err}}
	}
	return dirResult{err: &DirectoryError{Path: base + "*", Err: lastErr}}
}
