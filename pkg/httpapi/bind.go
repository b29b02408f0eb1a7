package httpapi

import (
	"errors"
	"io"

	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// BindJSON decodes the request body into out. An empty body leaves out
// untouched when allowEmpty is set.
func BindJSON(c *gin.Context, out any, allowEmpty bool) error {
	err := c.ShouldBindWith(out, binding.JSON)
	if err == nil {
		return nil
	}
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return errutil.BadRequest("Invalid JSON body", err)
}

// BindQuery decodes query parameters (limit, offset, filters) into out.
func BindQuery(c *gin.Context, out any) error {
	if err := c.ShouldBindQuery(out); err != nil {
		return errutil.BadRequest("Invalid query parameters", err)
	}
	return nil
}

// Actor returns the id of the authenticated admin, or "" outside admin routes.
func Actor(c *gin.Context) string {
	if p := middleware.Principal(c); p != nil {
		return p.UserID
	}
	return ""
}

// Fail hands err to the error middleware.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
}
