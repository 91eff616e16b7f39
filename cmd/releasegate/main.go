package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/initcodes20/releasegate/cmd/releasegate/container"
	"github.com/initcodes20/releasegate/cmd/releasegate/middleware"
	"github.com/initcodes20/releasegate/cmd/releasegate/repository"
	"github.com/initcodes20/releasegate/cmd/releasegate/routes"
	"github.com/initcodes20/releasegate/common/bootstrap"
	"github.com/initcodes20/releasegate/common/db"
	"github.com/initcodes20/releasegate/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB)
	components, err := bootstrap.Setup(ctx, "releasegate",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.EnsureSchema(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap releasegate: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Start the cross-instance change feed driving subscriber fan-out
	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	go serviceContainer.Feed.Start(feedCtx)

	// Initialize Echo server
	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	routes.RegisterVersionRoutes(e, serviceContainer)

	// Start with graceful shutdown
	srv := server.New("releasegate", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.ExtractUploader())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		ctx := ec.Request().Context()
		if err := c.Components.Health(ctx); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		if err := c.Redis.Health(ctx); err != nil {
			return ec.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return ec.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "releasegate",
		})
	})
}
