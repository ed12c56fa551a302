package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
)

func TestReadAPIRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	expected := map[string]string{
		"/_health":                   fiber.MethodGet,
		"/api/v1/dashboard":          fiber.MethodGet,
		"/api/v1/events":             fiber.MethodGet,
		"/api/v1/apps":               fiber.MethodGet,
		"/api/v1/filters":            fiber.MethodGet,
		"/api/v1/system/reimport":    fiber.MethodPost,
		"/api/v1/system/purge-cache": fiber.MethodPost,
	}

	found := make(map[string]bool, len(expected))
	for _, route := range routes {
		if method, ok := expected[route.Path]; ok && route.Method == method {
			found[route.Path] = true
		}
	}

	for path := range expected {
		require.Truef(t, found[path], "expected route %s to be registered", path)
	}
}

func TestSystemRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	var reimportRoute *fiber.Route
	for idx := range routes {
		route := routes[idx]
		if route.Method == fiber.MethodPost && route.Path == "/api/v1/system/reimport" {
			reimportRoute = &routes[idx]
			break
		}
	}

	require.NotNil(t, reimportRoute, "expected reimport route to be registered")

	// The rate limiter is wrapped in a conditional function that only applies
	// in production. In the test environment it passes through but the
	// wrapper still exists on the handler chain.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range reimportRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
			hasRateLimiter = true
			break
		}
	}

	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for reimport route, handlers: %v", handlerNames)
}
