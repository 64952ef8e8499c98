package resourcecache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTracked 表示 Release 的路径不属于当前 Cache（或已被释放）。
	ErrNotTracked = errors.New("resource not tracked")
	// ErrDestroyed 表示 Cache 已销毁，不再接受新的缓存请求。
	ErrDestroyed = errors.New("resource cache destroyed")
)

// DirectoryError 表示临时目录创建失败（非 "已存在" 的原因）。
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("create cache directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// WriteError 表示缓存文件写入失败；目录创建失败时 Err 为 *DirectoryError。
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write cache file: %v", e.Err)
	}
	return fmt.Sprintf("write cache file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FetchError 表示网络层失败（建立连接、读取响应体）。
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("GET request to %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError 表示上游返回了非 200 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET request to %s failed with status %d", e.URL, e.StatusCode)
}

// DeleteError 表示 Release 时删除文件失败。
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete cache file %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
