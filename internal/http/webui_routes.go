package http

import (
	"io/fs"

	"github.com/gofiber/fiber/v2"

	webui "infosage/frontend"
)

// registerWebUIRoutes serves the embedded verification page at /. The page
// is self-contained, so every other path is left to the router's 404.
func registerWebUIRoutes(app *fiber.App) error {
	page, err := fs.ReadFile(webui.FS(), "dist/index.html")
	if err != nil {
		return err
	}

	app.Get("/", func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Type("html", "utf-8")
		return c.Send(page)
	})
	return nil
}
