package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"supertrend-core/internal/botconfig"
	"supertrend-core/internal/ledger"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/supervisor"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status())
}

func (s *Server) startBot(c *gin.Context) {
	var verr *botconfig.ValidationError
	cfg, err := s.Config.Load()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.As(err, &verr) {
			status = http.StatusUnprocessableEntity
		}
		respondError(c, status, err.Error())
		return
	}
	st, err := s.Engine.Start(c.Request.Context(), cfg)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, st)
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "Bot is already running")
	case errors.As(err, &verr):
		respondError(c, http.StatusUnprocessableEntity, verr.Error())
	default:
		logger.Errorf("start failed: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to start bot: "+err.Error())
	}
}

func (s *Server) stopBot(c *gin.Context) {
	if err := s.Engine.Stop(); err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to stop bot: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, s.Engine.Status())
}

func (s *Server) getConfig(c *gin.Context) {
	cfg, err := s.Config.Load()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, cfg.Masked())
}

// updateConfig merges the posted fields over the stored config, so partial
// updates are accepted.
func (s *Server) updateConfig(c *gin.Context) {
	cfg, err := s.Config.Load()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusUnprocessableEntity, "invalid config payload: "+err.Error())
		return
	}
	res, err := s.Config.Save(cfg)
	var verr *botconfig.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(c, http.StatusUnprocessableEntity, verr.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	msg := "Configuration saved"
	if res.Deferred {
		msg = "Configuration saved; restart the bot to apply it"
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": msg, "deferred": res.Deferred})
}

// day reads the optional ?date=YYYY-MM-DD parameter; the default is today.
func (s *Server) day(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return s.now(), true
	}
	d, err := time.ParseInLocation("2006-01-02", raw, s.Ledger.Location())
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d.Add(12 * time.Hour), true
}

func (s *Server) getPerformance(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	perf, err := s.Ledger.Performance(c.Request.Context(), day)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (s *Server) getTrades(c *gin.Context) {
	day, ok := s.day(c)
	if !ok {
		return
	}
	trades, err := s.Ledger.Trades(c.Request.Context(), day)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []ledger.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getLogs(c *gin.Context) {
	n := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondError(c, http.StatusUnprocessableEntity, "lines must be a positive integer")
			return
		}
		n = min(v, maxLogLines)
	}
	lines := logger.Tail(n)
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines, "count": len(lines)})
}
