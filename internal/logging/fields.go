package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResourceFields 提供请求 ID、操作与缓存文件路径字段，供 HTTP 门面日志复用。
func ResourceFields(requestID, action, path string) logrus.Fields {
	fields := logrus.Fields{
		"action": action,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if path != "" {
		fields["path"] = path
	}
	return fields
}
