package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/api/middleware"
	"github.com/GriffinCanCode/readcomic/internal/extractor"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/readcomic/internal/preferences"
	"github.com/GriffinCanCode/readcomic/internal/providers/http/client"
	"github.com/GriffinCanCode/readcomic/internal/providers/readcomic"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	CaptchaURL string `json:"captcha_url,omitempty"`
	Stage      string `json:"stage,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// classify maps an error onto a status and a stable code
func classify(err error) (int, ErrorResponse) {
	var (
		captcha *client.CaptchaError
		status  *client.StatusError
		sbx     *extractor.SandboxError
	)

	// Captcha first: a bootstrap fetch that hit the wall arrives wrapped in a
	// SandboxError.
	switch {
	case errors.As(err, &captcha):
		return http.StatusForbidden, ErrorResponse{Code: "captcha_required", CaptchaURL: captcha.URL}
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable, ErrorResponse{Code: "site_unavailable"}
	case errors.Is(err, readcomic.ErrInvalidPath), errors.Is(err, preferences.ErrInvalid):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_request"}
	case errors.Is(err, extractor.ErrScriptNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "script_not_found"}
	case errors.Is(err, extractor.ErrNoImagesFound):
		return http.StatusNotFound, ErrorResponse{Code: "no_images"}
	case errors.Is(err, readcomic.ErrUnexpectedLayout):
		return http.StatusBadGateway, ErrorResponse{Code: "unexpected_layout"}
	case errors.Is(err, ErrHostNotAllowed), errors.Is(err, client.ErrForbiddenHost):
		return http.StatusForbidden, ErrorResponse{Code: "host_not_allowed"}
	case errors.Is(err, client.ErrNotImage):
		return http.StatusBadGateway, ErrorResponse{Code: "not_image"}
	case errors.Is(err, client.ErrBodyTooLarge):
		return http.StatusBadGateway, ErrorResponse{Code: "too_large"}
	case errors.As(err, &status):
		if status.Code == http.StatusNotFound {
			return http.StatusNotFound, ErrorResponse{Code: "not_found"}
		}
		return http.StatusBadGateway, ErrorResponse{Code: "site_error"}
	case errors.As(err, &sbx):
		return http.StatusBadGateway, ErrorResponse{Code: "sandbox_failed", Stage: string(sbx.Stage)}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Code: "timeout"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "internal"}
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	code, body := classify(err)
	body.Error = err.Error()
	body.RequestID = middleware.GetRequestID(c)

	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("request_id", body.RequestID),
			zap.String("code", body.Code),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		Code:      "invalid_request",
		RequestID: middleware.GetRequestID(c),
	})
}
