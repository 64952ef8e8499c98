package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.BodyLimit < 0 {
		return newFieldError("Global.BodyLimit", "不能为负数")
	}

	cache := c.Cache
	if strings.TrimSpace(cache.TempRoot) == "" {
		return newFieldError(cacheField("TempRoot"), "不能为空")
	}
	if err := validatePrefix(cache.Prefix); err != nil {
		return newFieldError(cacheField("Prefix"), err.Error())
	}
	if cache.BufferLimit <= 0 {
		return newFieldError(cacheField("BufferLimit"), "必须大于 0")
	}

	return nil
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsRune(prefix, filepath.Separator) || strings.Contains(prefix, "/") {
		return errors.New("不允许包含路径分隔符")
	}
	if strings.ContainsAny(prefix, " \t") {
		return errors.New("不允许包含空白字符")
	}
	return nil
}
