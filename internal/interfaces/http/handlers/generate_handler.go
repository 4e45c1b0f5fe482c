// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tavnit/docshield/internal/security"
	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
	"github.com/tavnit/docshield/pkg/logger"
)

const clientIDHeader = "X-Client-ID"

// GenerateHandler fronts the validation pipeline for document generation.
type GenerateHandler struct {
	manager *security.Manager
	log     logger.Logger
}

// NewGenerateHandler creates the handler.
func NewGenerateHandler(manager *security.Manager, log logger.Logger) *GenerateHandler {
	return &GenerateHandler{manager: manager, log: log}
}

// generateRequest is the wire shape of a generation attempt. The client id
// may come from the body or the X-Client-ID header; header wins.
type generateRequest struct {
	ClientID     string                 `json:"clientId"`
	TemplatePath string                 `json:"templatePath" binding:"required"`
	FieldData    map[string]interface{} `json:"fieldData"`
	RequestSize  int64                  `json:"requestSize"`
}

// Generate runs one request through every defense layer and renders the
// structured outcome. The HTTP status mirrors the rejecting layer's code.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var body generateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(constants.ErrCodeValidationFailed),
			"message": "malformed request body: " + err.Error(),
		})
		return
	}

	clientID := c.GetHeader(clientIDHeader)
	if clientID == "" {
		clientID = body.ClientID
	}
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(constants.ErrCodeValidationFailed),
			"message": "client id is required (X-Client-ID header or clientId field)",
		})
		return
	}

	requestID, _ := c.Request.Context().Value(constants.ContextKeyRequestID).(string)

	result := h.manager.ValidateRequest(c.Request.Context(), security.SecurityRequest{
		ClientID:     clientID,
		TemplatePath: body.TemplatePath,
		FieldData:    body.FieldData,
		RequestSize:  body.RequestSize,
		RequestID:    requestID,
	})

	if !result.Allowed {
		c.JSON(statusFor(result.Error), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusFor maps a layer rejection onto an HTTP status.
func statusFor(le *security.LayerError) int {
	if le == nil {
		return http.StatusInternalServerError
	}
	return errors.New(le.Code, le.Layer, le.Message).HTTPStatus()
}
