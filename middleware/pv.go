package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/utils"
)

// ViewRecorder counts page views.
type ViewRecorder interface {
	Record(ctx context.Context, path string, at time.Time) error
}

// PageViewRecorder counts successful GETs of the wrapped route per day and path.
func PageViewRecorder(rec ViewRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		if status := c.Writer.Status(); status < 200 || status >= 300 {
			return
		}
		if err := rec.Record(c.Request.Context(), c.Request.URL.Path, time.Now()); err != nil {
			utils.Sugar.Warnf("page view record failed path=%s err=%v", c.Request.URL.Path, err)
		}
	}
}
