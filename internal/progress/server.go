package progress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Router exposes the hub: GET /ws for the event stream and GET /api/state for a snapshot.
func Router(hub *Hub, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", ServeWs(hub, logger))
	router.GET("/api/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": hub.Snapshot()})
	})
	return router
}

// Snapshot returns the latest payload of every event sent so far.
func (h *Hub) Snapshot() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]interface{}, len(h.last))
	for ev, msg := range h.last {
		out[ev] = msg.Data
	}
	return out
}

// Serve runs the UI server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, hub *Hub, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("progress ui listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
