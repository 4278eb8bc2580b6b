// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/meditech/meditech-backend/internal/auth"
	"github.com/meditech/meditech-backend/internal/core"
	"github.com/meditech/meditech-backend/internal/storage"
)

// ErrorHandler creates a Gin middleware for centralized error handling.
// Handlers attach errors with c.Error and return; the last one decides the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		last := c.Errors.Last()
		err := last.Err
		statusCode, userMessage := classify(last)

		entry := customLog.WithField("status", statusCode).WithField("path", c.Request.URL.Path)
		if statusCode >= http.StatusInternalServerError {
			entry.Warnf("[ErrorHandler] Unhandled error type: %T, Error: %v", err, err)
		} else {
			entry.Printf("[ErrorHandler] Detected error: %v", err)
		}

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(statusCode, gin.H{"error": userMessage})
		} else {
			customLog.Warnln("[ErrorHandler] Warning: Response already written before handling error.")
		}
	}
}

func classify(ginErr *gin.Error) (int, string) {
	err := ginErr.Err

	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, storage.ErrEmailExists),
		errors.Is(err, storage.ErrConstraintViolation):
		return http.StatusConflict, err.Error()

	case errors.Is(err, storage.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password."

	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Login required."

	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Authentication token has expired."

	case errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenClaimsInvalid),
		errors.Is(err, auth.ErrUnexpectedSigningMethod):
		return http.StatusUnauthorized, "Invalid or malformed authentication token."

	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "You do not have permission to perform this action."

	case errors.As(err, &validationErrs):
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return http.StatusBadRequest, "Validation failed: " + strings.Join(fields, ", ")

	case ginErr.IsType(gin.ErrorTypeBind),
		errors.Is(err, core.ErrBadRequest),
		errors.Is(err, storage.ErrColumnNotFound):
		return http.StatusBadRequest, err.Error()

	default:
		return http.StatusInternalServerError, "An unexpected internal server error occurred."
	}
}
