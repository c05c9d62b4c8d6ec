// Package response holds the reply helpers for the plain Echo routes of
// the agent protocol. Success payloads (next-job descriptors, log
// streams) are part of the wire contract and returned raw; these helpers
// cover the acknowledgement and error cases.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Ack is the job-status reply. Status echoes the job's status after the
// report so agents can confirm what was persisted.
type Ack struct {
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
}

func OK(c echo.Context, status string) error {
	return c.JSON(http.StatusOK, Ack{OK: true, Status: status})
}

func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
