package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(testConfigPath(t, "absent.toml")); err == nil {
		t.Fatalf("缺失的配置文件应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
UpstreamTimeout = "boom"

[Cache]
Prefix = "resourcecache"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	path := writeTempConfig(t, `UpstreamTimeout = 12`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := cfg.Global.UpstreamTimeout.DurationValue().Seconds(); got != 12 {
		t.Fatalf("期望 12 秒，得到 %v", got)
	}
}

func TestLoadBodyLimit(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `BodyLimit = 1024`))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.BodyLimit != 1024 {
		t.Fatalf("BodyLimit 解析错误: %d", cfg.Global.BodyLimit)
	}

	if _, err := Load(writeTempConfig(t, `BodyLimit = -1`)); err == nil {
		t.Fatalf("负数 BodyLimit 应失败")
	}
}

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

// writeTempConfig 把内联 TOML 写入临时目录并返回路径。
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
