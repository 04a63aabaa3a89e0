package livehttp

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"newstrader/internal/audit"
	"newstrader/internal/state"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// Router serves state and decision queries under /api.
type Router struct {
	store   *state.Store
	latest  *audit.Latest
	history *audit.SQLiteSink
	now     func() time.Time
}

func NewRouter(store *state.Store, latest *audit.Latest, history *audit.SQLiteSink) *Router {
	return &Router{store: store, latest: latest, history: history, now: time.Now}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/state", r.handleSymbols)
	group.GET("/state/:symbol", r.handleSymbolState)
	group.GET("/pdt", r.handlePDT)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/trades", r.handleTrades)
}

func (r *Router) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": r.store.Symbols()})
}

func (r *Router) handleSymbolState(c *gin.Context) {
	sym := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if !slices.Contains(r.store.Symbols(), sym) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + sym})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "state": r.store.Snapshot(sym)})
}

func (r *Router) handlePDT(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"days": r.store.PDTDays()})
}

func (r *Router) handleDecisions(c *gin.Context) {
	sym := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit := parseLimit(c)
	if r.history != nil {
		rows, err := r.history.RecentDecisions(c.Request.Context(), sym, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": "sqlite", "decisions": rows})
		return
	}
	if r.latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	latest := r.latest.Snapshot(r.now())
	out := make([]audit.DecisionEvent, 0, len(latest))
	for _, ev := range latest {
		if sym == "" || ev.Symbol == sym {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"source": "latest", "decisions": out})
}

func (r *Router) handleTrades(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade history requires audit.sqlite_path"})
		return
	}
	rows, err := r.history.RecentTrades(c.Request.Context(), parseLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows})
}

func parseLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
