package resourcecache

import "sync"

// exitRegistry 记录仍存活的 Cache，供进程退出时统一清理。
var exitRegistry = struct {
	mu     sync.Mutex
	caches map[*Cache]struct{}
}{caches: make(map[*Cache]struct{})}

func register(c *Cache) {
	exitRegistry.mu.Lock()
	exitRegistry.caches[c] = struct{}{}
	exitRegistry.mu.Unlock()
}

func unregister(c *Cache) {
	exitRegistry.mu.Lock()
	delete(exitRegistry.caches, c)
	exitRegistry.mu.Unlock()
}

// DestroyAll 对所有尚未销毁的 Cache 执行 Destroy。应在 main 中 defer 调用，
// 并在收到 SIGINT/SIGTERM 时调用；进程被强制杀死时不会执行。
func DestroyAll() {
	exitRegistry.mu.Lock()
	caches := make([]*Cache, 0, len(exitRegistry.caches))
	for c := range exitRegistry.caches {
		caches = append(caches, c)
	}
	exitRegistry.mu.Unlock()

	for _, c := range caches {
		c.Destroy()
	}
}
