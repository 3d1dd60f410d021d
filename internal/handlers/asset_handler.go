package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/nano-midea/livechat/internal/repositories"
	"github.com/labstack/echo/v4"
)

// AssetHandler serves assets for backends that keep them in-process or in GridFS
type AssetHandler struct {
	reader repositories.AssetReader
}

// NewAssetHandler creates a new AssetHandler
func NewAssetHandler(reader repositories.AssetReader) *AssetHandler {
	return &AssetHandler{reader: reader}
}

// RegisterAssetRoutes registers the download route
func (h *AssetHandler) RegisterAssetRoutes(g *echo.Group) {
	g.GET("/assets/*", h.GetAsset)
}

// GetAsset streams a stored asset
func (h *AssetHandler) GetAsset(c echo.Context) error {
	id := c.Param("*")
	if id == "" {
		return echo.NewHTTPError(http.StatusNotFound, "Asset not found")
	}

	data, contentType, err := h.reader.Open(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrEntryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Asset not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Blob(http.StatusOK, contentType, data)
}
