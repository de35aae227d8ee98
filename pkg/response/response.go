package response

import (
	"errors"
	"net/http"

	"mobileshop/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeConflict    = 409
	CodeServerError = 500
	CodeUpstream    = 502
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: CodeParamError, Message: message})
}

// HandleError is the single boundary that maps service errors to transport
// responses. Integrity errors are deliberately masked: the detail goes to
// the log, the caller only learns that the request failed.
func HandleError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, Response{Code: CodeServerError, Message: "internal error"})
		return
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, Response{Code: CodeParamError, Message: appErr.Message})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, Response{Code: CodeNotFound, Message: appErr.Message})
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, Response{Code: CodeConflict, Message: appErr.Message})
	case apperr.KindExternal:
		c.JSON(http.StatusBadGateway, Response{Code: CodeUpstream, Message: appErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, Response{Code: CodeServerError, Message: "internal error"})
	}
}
