package http

import "github.com/gin-gonic/gin"

// Register mounts the reader API on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	comics := router.Group("/comics")
	comics.GET("/popular", h.Popular)
	comics.GET("/latest", h.Latest)
	comics.GET("/search", h.Search)

	router.GET("/comic", h.Comic)
	router.GET("/chapter/pages", h.Pages)
	router.GET("/image", h.Image)
	router.GET("/genres", h.Genres)

	router.GET("/preferences", h.GetPreferences)
	router.PUT("/preferences", h.PutPreferences)
}
