// Package api is the HTTP surface: health, signer discovery, and a command
// gateway that lets chat platforms other than Telegram drive the dispatcher.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/transfer"
)

// Dispatcher is satisfied by *bot.Dispatcher.
type Dispatcher interface {
	Handle(ctx context.Context, id identity.ID, text string) string
	Halted() bool
}

// Signer is satisfied by *authz.Issuer.
type Signer interface {
	SignerAddress() common.Address
	Domain() transfer.Domain
	Decimals() int32
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	disp   Dispatcher
	signer Signer
	store  HealthChecker
	log    *zap.Logger
}

func NewHandler(disp Dispatcher, signer Signer, store HealthChecker, log *zap.Logger) *Handler {
	return &Handler{disp: disp, signer: signer, store: store, log: log}
}

// Register mounts the routes on r. The command gateway is only mounted when
// apiToken is non-empty.
func (h *Handler) Register(r gin.IRouter, apiToken string) {
	r.GET("/healthz", h.handleHealth)
	r.GET("/api/signer", h.handleSigner)

	if apiToken != "" {
		cmds := r.Group("/api", BearerAuth(apiToken))
		cmds.POST("/commands", h.handleCommand)
	}
}

func (h *Handler) handleHealth(c *gin.Context) {
	if h.disp.Halted() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "halted"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.HealthCheck(ctx); err != nil {
		h.log.Warn("health: store unreachable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type signerResponse struct {
	Address  string         `json:"address"`
	Domain   domainResponse `json:"domain"`
	Decimals int32          `json:"decimals"`
}

type domainResponse struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

func (h *Handler) handleSigner(c *gin.Context) {
	d := h.signer.Domain()
	c.JSON(http.StatusOK, signerResponse{
		Address: h.signer.SignerAddress().Hex(),
		Domain: domainResponse{
			Name:              d.Name,
			Version:           d.Version,
			ChainID:           d.ChainID.String(),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Decimals: h.signer.Decimals(),
	})
}

type commandRequest struct {
	Identity string `json:"identity" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

func (h *Handler) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity and text are required"})
		return
	}
	id := identity.ID(strings.TrimSpace(req.Identity))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity and text are required"})
		return
	}
	if len(id) > identity.MaxIDLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("identity longer than %d bytes", identity.MaxIDLen)})
		return
	}
	reply := h.disp.Handle(c.Request.Context(), id, req.Text)
	status := http.StatusOK
	if h.disp.Halted() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"reply": reply})
}
