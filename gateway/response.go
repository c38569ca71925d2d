package gateway

import (
	"net/http"
	"strconv"

	"github.com/example/storefront/pkg/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// fail renders err. Domain errors keep their message and code; anything
// else is logged and reported as a generic 500.
func (g *Gateway) fail(c *gin.Context, err error) {
	if e, isApp := apperr.As(err); isApp && e.Kind != apperr.KindInternal {
		c.AbortWithStatusJSON(e.Kind.HTTPStatus(), envelope{
			Error: &errorBody{Message: e.Message, Code: e.Code, Fields: e.Fields},
		})
		return
	}
	g.logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{
		Error: &errorBody{Message: "internal server error", Code: apperr.CodeInternal},
	})
}

func invalidBody(err error) error {
	return apperr.Validation("invalid request body", map[string]string{"body": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
