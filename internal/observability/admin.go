package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Admin describes what the admin surface reports on.
type Admin struct {
	App  string
	Pool *buffer.Pool
	// History is optional; when set /pool includes recent slot toggles.
	History *buffer.History
	Started time.Time
}

type poolResponse struct {
	Stats   buffer.Stats `json:"stats"`
	Bitmask string       `json:"bitmask"`
	Recent  []string     `json:"recent,omitempty"`
}

// Router builds the gin engine serving /health, /metrics and /pool.
func (a Admin) Router() *gin.Engine {
	RegisterMetrics()
	if a.Started.IsZero() {
		a.Started = time.Now()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware(a.App))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"app":    a.App,
			"uptime": time.Since(a.Started).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/pool", func(c *gin.Context) {
		if a.Pool == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pool"})
			return
		}
		s := a.Pool.Stats()
		resp := poolResponse{Stats: s, Bitmask: bitmask(s.Bitmask)}
		if a.History != nil {
			for _, ev := range a.History.Events() {
				resp.Recent = append(resp.Recent, ev.String())
			}
		}
		c.JSON(http.StatusOK, resp)
	})
	return r
}

func bitmask(b uint8) string {
	out := make([]byte, 8)
	for i := range out {
		if b&(0x80>>i) != 0 {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}

// Serve runs the admin router on ln until ctx is done.
func (a Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is done.
func (a Admin) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}
