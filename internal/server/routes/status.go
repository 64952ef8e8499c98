package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/resource-cache/internal/server"
	"github.com/any-hub/resource-cache/internal/version"
)

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查看临时目录与登记文件。
func RegisterStatusRoutes(app *fiber.App, cache server.ResourceCache) {
	if app == nil || cache == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(cache))
	})
}

type statusPayload struct {
	Directory string   `json:"directory"`
	Ready     bool     `json:"ready"`
	Tracked   int      `json:"tracked"`
	Files     []string `json:"files"`
	Version   string   `json:"version"`
}

func encodeStatus(cache server.ResourceCache) statusPayload {
	dir, ready := cache.DirectoryPath()
	files := cache.Tracked()
	if files == nil {
		files = []string{}
	}
	return statusPayload{
		Directory: dir,
		Ready:     ready,
		Tracked:   len(files),
		Files:     files,
		Version:   version.Full(),
	}
}
