package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shelfwatch/shelfwatch/extract"
	"github.com/shelfwatch/shelfwatch/models"
)

// Extractors returns a handler for GET /api/v1/extractors.
//
// Lists registered extraction plugins in dispatch order; the generic
// fallback is always last.
func Extractors(reg *extract.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := reg.Names()
		infos := make([]models.ExtractorInfo, 0, len(names))
		for i, name := range names {
			infos = append(infos, models.ExtractorInfo{Position: i, Name: name})
		}

		c.JSON(http.StatusOK, models.ExtractorsResponse{
			Success:    true,
			Extractors: infos,
		})
	}
}
