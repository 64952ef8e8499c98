package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/resource-cache/internal/logging"
	"github.com/any-hub/resource-cache/internal/resourcecache"
)

type resourceHandler struct {
	cache  ResourceCache
	logger *logrus.Logger
}

type fetchRequest struct {
	URL    string `json:"url"`
	Accept string `json:"accept"`
}

type resourcePayload struct {
	Path string `json:"path"`
}

// cacheBytes 将请求体原样写入缓存文件。
func (h *resourceHandler) cacheBytes(c fiber.Ctx) error {
	path, err := h.cache.FromBytes(requestContext(c), c.Body())
	h.logResult(c, "cache_from_bytes", path, err)
	if err != nil {
		return h.writeCacheError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resourcePayload{Path: path})
}

// cacheURL 下载 JSON 请求中的 url 并返回缓存文件路径。
func (h *resourceHandler) cacheURL(c fiber.Ctx) error {
	var req fetchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
	}

	path, err := h.cache.FromURL(requestContext(c), req.URL, strings.TrimSpace(req.Accept))
	h.logResult(c, "cache_from_url", path, err, "url", req.URL)
	if err != nil {
		return h.writeCacheError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resourcePayload{Path: path})
}

// release 删除 ?path= 指定的缓存文件。
func (h *resourceHandler) release(c fiber.Ctx) error {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path_required"})
	}

	err := h.cache.Release(path)
	h.logResult(c, "release", path, err)
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusNoContent)
	case errors.Is(err, resourcecache.ErrNotTracked):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "resource_not_found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "release_failed"})
	}
}

func (h *resourceHandler) writeCacheError(c fiber.Ctx, err error) error {
	var statusErr *resourcecache.StatusError
	var fetchErr *resourcecache.FetchError
	switch {
	case errors.As(err, &statusErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  "upstream_status",
			"status": statusErr.StatusCode,
		})
	case errors.As(err, &fetchErr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	case errors.Is(err, resourcecache.ErrDestroyed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache_destroyed"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_write_failed"})
	}
}

func (h *resourceHandler) logResult(c fiber.Ctx, action, path string, err error, extra ...string) {
	fields := logging.ResourceFields(RequestID(c), action, path)
	for i := 0; i+1 < len(extra); i += 2 {
		fields[extra[i]] = extra[i+1]
	}
	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("resource_request_failed")
		return
	}
	entry.Info("resource_request_completed")
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
