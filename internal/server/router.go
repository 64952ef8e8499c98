package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ResourceCache describes the cache operations exposed over HTTP. It allows
// injecting fakes during tests; *resourcecache.Cache satisfies it.
type ResourceCache interface {
	FromBytes(ctx context.Context, data []byte) (string, error)
	FromURL(ctx context.Context, rawURL, accept string) (string, error)
	Release(path string) error
	Tracked() []string
	DirectoryPath() (string, bool)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Cache      ResourceCache
	ListenPort int
	BodyLimit  int
}

const contextKeyRequestID = "_resourcecache_request_id"

// NewApp builds a Fiber application with request IDs, panic recovery and the
// /resources routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("resource cache is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	cfg := fiber.Config{CaseSensitive: true}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}
	app := fiber.New(cfg)

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &resourceHandler{cache: opts.Cache, logger: opts.Logger}
	app.Post("/resources", h.cacheBytes)
	app.Post("/resources/fetch", h.cacheURL)
	app.Delete("/resources", h.release)

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID，并写回 X-Request-ID 响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
