package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/initcodes20/releasegate/cmd/releasegate/container"
	"github.com/initcodes20/releasegate/cmd/releasegate/handlers"
)

// RegisterVersionRoutes registers the version catalog routes
func RegisterVersionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewVersionHandler(c.Catalog, c.Admission, c.Components.Logger)
	stream := handlers.NewCatalogStreamHandler(c.Catalog, c.Components.Logger)

	versions := e.Group("/api/v1/versions")
	{
		versions.GET("", h.List)                     // GET /api/v1/versions
		versions.GET("/latest", h.Latest)            // GET /api/v1/versions/latest
		versions.POST("", h.Create)                  // POST /api/v1/versions (link mode)
		versions.POST("/upload", h.Upload)           // POST /api/v1/versions/upload (binary mode)
		versions.PATCH("/:code/active", h.SetActive) // PATCH /api/v1/versions/18/active
		versions.GET("/:code/download", h.Download)  // GET /api/v1/versions/18/download
	}

	// Live catalog subscription
	e.GET("/ws/catalog", stream.Serve)
}
