package handlers

import "github.com/gin-gonic/gin"

type HealthHandler struct {
	pingDB    func() error
	pingCache func() error
}

// create a new instance of the health handler
func NewHealthHandler(pingDB, pingCache func() error) *HealthHandler {
	return &HealthHandler{pingDB: pingDB, pingCache: pingCache}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(200, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.pingDB != nil {
		if err := h.pingDB(); err != nil {
			ctx.JSON(503, gin.H{"status": "not_ready", "reason": "db"})
			return
		}
	}

	if h.pingCache != nil {
		if err := h.pingCache(); err != nil {
			ctx.JSON(503, gin.H{"status": "not_ready", "reason": "cache"})
			return
		}
	}

	ctx.JSON(200, gin.H{"status": "ready"})
}
