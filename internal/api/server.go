// Package api is the companion REST surface. It consumes the game engine and
// the spam gate as libraries; nothing here talks to the chat transport.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vinzz/vinzz-rpg-bot/internal/domain"
	"github.com/vinzz/vinzz-rpg-bot/internal/ratelimit"
	"github.com/vinzz/vinzz-rpg-bot/internal/rpg"
	"github.com/vinzz/vinzz-rpg-bot/internal/store"
)

// Key is one API credential. Admin keys may use the /api/admin endpoints.
type Key struct {
	Name  string
	Admin bool
}

type Server struct {
	users   *store.Store
	engine  *rpg.Engine
	limiter *ratelimit.Limiter
	keys    map[string]Key
	logger  *zap.Logger
	router  *gin.Engine
	started time.Time
}

func NewServer(users *store.Store, engine *rpg.Engine, limiter *ratelimit.Limiter, keys map[string]Key, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		users:   users,
		engine:  engine,
		limiter: limiter,
		keys:    keys,
		logger:  logger,
		started: time.Now(),
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.routes(r)
	s.router = r
	return s
}

// Router exposes the handler for tests and custom servers.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	s.logger.Info("api_listen", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api", s.requireKey(false))
	{
		api.GET("/user/:id", s.getUser)
		api.GET("/user/:id/stats", s.getUserStats)
		api.POST("/user/:id/exp", s.grantExp)
		api.POST("/user/:id/gold", s.adjustGold)
		api.GET("/user/:id/inventory", s.getInventory)
		api.POST("/user/:id/inventory", s.adjustInventory)
		api.GET("/items", s.listItems)
		api.GET("/items/:id", s.getItem)
		api.GET("/leaderboard/:type", s.leaderboard)
		api.GET("/stats", s.aggregateStats)
	}

	admin := r.Group("/api/admin", s.requireKey(true))
	{
		admin.POST("/warn", s.warn)
		admin.POST("/unban", s.unban)
		admin.GET("/spam/:id", s.spamStats)
		admin.POST("/reset", s.resetSpam)
	}
}

// requireKey authenticates the X-API-Key header against the static key table.
func (s *Server) requireKey(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := s.keys[strings.TrimSpace(c.GetHeader("X-API-Key"))]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		if admin && !key.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin key required"})
			return
		}
		c.Set("key_name", key.Name)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) getUserStats(c *gin.Context) {
	u, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": u.ID, "level": u.Level, "exp": u.Exp, "next_level_exp": u.NextLevelExp,
		"hp": u.HP, "max_hp": u.MaxHP, "attack": u.Attack, "defense": u.Defense,
		"gold": u.Gold, "total_hunts": u.TotalHunts, "total_fishes": u.TotalFishes,
		"total_battles": u.TotalBattles,
	})
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func (s *Server) grantExp(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "positive amount required"})
		return
	}
	var lv rpg.LevelResult
	u, err := s.users.UpdateUser(c.Request.Context(), c.Param("id"), func(u *domain.UserRecord) error {
		lv = s.engine.GrantExperience(u, req.Amount)
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "leveled": lv.Leveled, "levels": lv.Levels})
}

// adjustGold credits a positive amount or spends a negative one. A spend
// that exceeds the balance is a 400 and changes nothing.
func (s *Server) adjustGold(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "non-zero amount required"})
		return
	}
	u, err := s.users.UpdateUser(c.Request.Context(), c.Param("id"), func(u *domain.UserRecord) error {
		if req.Amount > 0 {
			s.engine.AddGold(u, req.Amount)
			return nil
		}
		return s.engine.SpendGold(u, -req.Amount)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "gold": u.Gold})
}

func (s *Server) getInventory(c *gin.Context) {
	u, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": u.ID, "potions": u.Potions, "bait": u.Bait, "inventory": u.Inventory,
	})
}

type inventoryRequest struct {
	Item string `json:"item" binding:"required"`
	Qty  int    `json:"qty" binding:"required"`
}

func (s *Server) adjustInventory(c *gin.Context) {
	var req inventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Qty == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item and non-zero qty required"})
		return
	}
	u, err := s.users.UpdateUser(c.Request.Context(), c.Param("id"), func(u *domain.UserRecord) error {
		if req.Qty > 0 {
			return s.engine.AddItem(u, req.Item, req.Qty)
		}
		return s.engine.RemoveItem(u, req.Item, -req.Qty)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": u.ID, "potions": u.Potions, "bait": u.Bait, "inventory": u.Inventory,
	})
}

func (s *Server) listItems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.engine.Catalog().Items, "shop": s.engine.Catalog().Shop})
}

func (s *Server) getItem(c *gin.Context) {
	def := s.engine.Catalog().Item(c.Param("id"))
	if def == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) leaderboard(c *gin.Context) {
	by := strings.ToLower(c.Param("type"))
	valid := false
	for _, t := range rpg.LeaderboardTypes {
		if t == by {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown leaderboard type"})
		return
	}
	users, err := s.users.AllUsers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	top := rpg.TopUsers(users, by, 10)
	c.JSON(http.StatusOK, gin.H{"type": by, "users": top})
}

func (s *Server) aggregateStats(c *gin.Context) {
	users, err := s.users.AllUsers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	var gold, hunts, fishes, battles int64
	for _, u := range users {
		gold += u.Gold
		hunts += int64(u.TotalHunts)
		fishes += int64(u.TotalFishes)
		battles += int64(u.TotalBattles)
	}
	c.JSON(http.StatusOK, gin.H{
		"users": len(users), "total_gold": gold,
		"total_hunts": hunts, "total_fishes": fishes, "total_battles": battles,
	})
}

type warnRequest struct {
	User   string `json:"user" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) warn(c *gin.Context) {
	var req warnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "api"
	}
	res, err := s.limiter.AddWarning(c.Request.Context(), req.User, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user": req.User, "warnings": res.Warnings, "max_warnings": res.MaxWarnings,
		"banned": res.Banned, "ban_expires": res.BanExpires,
	})
}

type userRequest struct {
	User string `json:"user" binding:"required"`
}

func (s *Server) unban(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user required"})
		return
	}
	had, err := s.limiter.Unban(c.Request.Context(), req.User)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": req.User, "unbanned": had})
}

func (s *Server) spamStats(c *gin.Context) {
	st, err := s.limiter.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) resetSpam(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user required"})
		return
	}
	if err := s.limiter.Reset(c.Request.Context(), req.User); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": req.User, "reset": true})
}

// fail maps engine declines to 400s and everything else to a 500.
func (s *Server) fail(c *gin.Context, err error) {
	var funds *domain.InsufficientFundsError
	switch {
	case errors.As(err, &funds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient gold", "need": funds.Need, "have": funds.Have})
	case errors.Is(err, domain.ErrUnknownItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown item"})
	case errors.Is(err, domain.ErrInsufficientItems):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient items"})
	case errors.Is(err, domain.ErrStackLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": "stack limit reached"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		s.logger.Error("api_error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
