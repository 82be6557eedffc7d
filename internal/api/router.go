// Package api exposes the submission endpoint over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the submission routes onto a gin engine with the default
// logger and recovery middleware
func NewRouter(handler *SubmissionHandler) *gin.Engine {
	router := gin.Default()

	router.POST("/api/submit-training/", handler.SubmitTraining)
	router.GET("/azure/callback/", handler.AzureCallback)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
