package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const chunkSize = 32 * 1024

// FromURL 以 GET 拉取 rawURL 并把响应体流式写入新的缓存文件。accept 非空时作为
// Accept 头发送。非 200 响应返回 *StatusError，且不会登记任何文件。
// ctx 取消会中止下载并删除未完成的文件。
func (c *Cache) FromURL(ctx context.Context, rawURL, accept string) (string, error) {
	started := time.Now()
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", asWriteError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", req.URL.Scheme)}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, chunkSize))
		resp.Body.Close()
		return "", &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	name, err := c.allocate(dir)
	if err != nil {
		resp.Body.Close()
		return "", err
	}

	d := newDownload(rawURL, name, c.bufferLimit)
	var wg sync.WaitGroup
	wg.Go(func() { d.pump(ctx, resp.Body) })
	wg.Go(func() { d.open(c.fs) })

	err = <-d.done
	resp.Body.Close()
	wg.Wait()

	if !c.isTracked(name) {
		err = ErrDestroyed
	}
	if err != nil {
		c.discard(name)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_from_url",
			"url":    rawURL,
		}).Debug("download aborted")
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"action":     "cache_from_url",
		"url":        rawURL,
		"path":       name,
		"size":       humanize.Bytes(uint64(d.written)),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Debug("resource cached")
	return name, nil
}

// download 协调两条独立推进的时间线：响应体到达与目标文件打开。
// 文件打开前到达的数据按序缓冲，打开后先整体刷盘再直接写入。
// 缓冲达到 limit 时读取端暂停，文件就绪时通过 resume 显式恢复。
type download struct {
	url   string
	name  string
	limit int64

	mu       sync.Mutex
	pending  [][]byte
	buffered int64
	file     afero.File
	complete bool
	finished bool
	written  int64
	resume   chan struct{}
	resumed  bool
	done     chan error
}

func newDownload(url, name string, limit int64) *download {
	return &download{
		url:    url,
		name:   name,
		limit:  limit,
		resume: make(chan struct{}),
		done:   make(chan error, 1),
	}
}

// pump 读取响应体直到 EOF、出错或下载已结束。
func (d *download) pump(ctx context.Context, body io.Reader) {
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !d.onData(buf[:n]) {
				return
			}
			d.hold(ctx)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.onEnd()
			} else {
				d.fail(&FetchError{URL: d.url, Err: err})
			}
			return
		}
	}
}

// open 创建目标文件，成功后切换到直写状态。
func (d *download) open(fsys afero.Fs) {
	f, err := fsys.OpenFile(d.name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		d.fail(&WriteError{Path: d.name, Err: err})
		return
	}
	d.onFileReady(f)
}

// onData 返回 false 表示下载已结束，读取端应停止。
func (d *download) onData(chunk []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return false
	}
	if d.file == nil {
		d.pending = append(d.pending, append([]byte(nil), chunk...))
		d.buffered += int64(len(chunk))
		return true
	}
	if err := d.writeLocked(chunk); err != nil {
		d.finishLocked(err)
		return false
	}
	return true
}

func (d *download) hold(ctx context.Context) {
	d.mu.Lock()
	held := d.file == nil && !d.finished && d.buffered >= d.limit
	d.mu.Unlock()
	if !held {
		return
	}
	select {
	case <-d.resume:
	case <-ctx.Done():
	}
}

func (d *download) onEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.complete = true
	if d.file != nil {
		d.finishLocked(nil)
	}
}

func (d *download) onFileReady(f afero.File) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		_ = f.Close()
		return
	}

	d.file = f
	pending := d.pending
	d.pending = nil
	d.buffered = 0
	for _, chunk := range pending {
		if err := d.writeLocked(chunk); err != nil {
			d.finishLocked(err)
			return
		}
	}

	if d.complete {
		d.finishLocked(nil)
		return
	}
	d.resumeLocked()
}

func (d *download) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finishLocked(err)
}

func (d *download) writeLocked(chunk []byte) error {
	n, err := d.file.Write(chunk)
	d.written += int64(n)
	if err == nil && n < len(chunk) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &WriteError{Path: d.name, Err: err}
	}
	return nil
}

// finishLocked 只投递一次结果，无论成功来自刷盘后立即关闭还是随后到达的 EOF。
func (d *download) finishLocked(err error) {
	if d.finished {
		return
	}
	d.finished = true
	d.pending = nil
	if d.file != nil {
		if closeErr := d.file.Close(); err == nil && closeErr != nil {
			err = &WriteError{Path: d.name, Err: closeErr}
		}
	}
	d.resumeLocked()
	d.done <- err
}

func (d *download) resumeLocked() {
	if !d.resumed {
		d.resumed = true
		close(d.resume)
	}
}
