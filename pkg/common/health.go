package common

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck returns a basic liveness handler.
func HealthCheck(serviceName, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthStatus{
			Status:    "ok",
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC(),
		})
	}
}

// ReadinessProbe runs the supplied dependency checks and reports 503 when any
// of them fails.
func ReadinessProbe(serviceName, version string, checks map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := HealthStatus{
			Status:    "ready",
			Service:   serviceName,
			Version:   version,
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]string, len(checks)),
		}

		code := http.StatusOK
		for name, check := range checks {
			if err := check(); err != nil {
				status.Checks[name] = err.Error()
				status.Status = "not ready"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}

		c.JSON(code, status)
	}
}
