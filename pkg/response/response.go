package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK writes a successful envelope.
func OK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope. kind is a short machine-readable error class.
func Fail(c *gin.Context, status int, kind, message string) {
	c.JSON(status, Envelope{Success: false, Message: message, Error: kind})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Error: kind})
}

type httpStatuser interface {
	HTTPStatus() int
}

type errorKinder interface {
	ErrorKind() string
}

// Err writes an error envelope for err, using its HTTP status and kind when
// the error carries them, 500 otherwise.
func Err(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "InternalError"

	var hs httpStatuser
	if errors.As(err, &hs) {
		status = hs.HTTPStatus()
	}
	var ek errorKinder
	if errors.As(err, &ek) {
		kind = ek.ErrorKind()
	}
	Fail(c, status, kind, err.Error())
}
