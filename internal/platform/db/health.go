package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is a named dependency check such as Redis or the message broker.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// HealthHandler pings the pool, when given, and every check. Any failure
// turns the response into a 503 naming the failing dependency.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		healthy := true
		results := make(map[string]string, len(checks)+1)
		body := map[string]interface{}{"checks": results}

		if pool != nil {
			results["postgres"] = "ok"
			if err := pool.Ping(ctx); err != nil {
				results["postgres"] = err.Error()
				healthy = false
			}
			body["pool"] = GetPoolStats(pool)
		}
		for _, chk := range checks {
			results[chk.Name] = "ok"
			if err := chk.Run(ctx); err != nil {
				results[chk.Name] = err.Error()
				healthy = false
			}
		}

		if !healthy {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
