package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chessrelay/internal/live"
	"chessrelay/internal/match"
	"chessrelay/internal/obslog"
	"chessrelay/pkg/matchdto"
)

// Server owns the HTTP surface. Player identity is a bearer token minted
// at create/join time and held only in memory; restarting the server
// orphans in-flight matches, which the polling clients surface as the
// generic error.
type Server struct {
	matches *match.Controller
	live    *live.Manager

	mu     sync.RWMutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	matchID  string
	side     live.Side
	playerID string
}

func New(matches *match.Controller, liveMgr *live.Manager) *Server {
	return &Server{
		matches: matches,
		live:    liveMgr,
		tokens:  make(map[string]tokenEntry),
	}
}

// Router builds the gin engine with all match routes mounted under /api.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api")
	api.POST("/match", s.handleCreate)
	api.GET("/match/:id/status", s.handleStatus)
	api.POST("/match/:id/join", s.handleJoin)
	api.POST("/match/:id/cancel", s.handleCancel)
	api.POST("/match/:id/move", s.handleMove)
	api.POST("/match/:id/checkin", s.handleCheckIn)
	api.POST("/match/:id/resign", s.handleResign)
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obslog.L().Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) register(matchID string, side live.Side, playerID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = tokenEntry{matchID: matchID, side: side, playerID: playerID}
	s.mu.Unlock()
	return token
}

// authorize resolves the caller's token against the addressed match. Any
// failure renders as the generic not-found body so tokens and match ids
// cannot be probed independently.
func (s *Server) authorize(c *gin.Context) (tokenEntry, bool) {
	token := strings.TrimSpace(c.GetHeader("X-Player-Token"))
	matchID := c.Param("id")
	s.mu.RLock()
	entry, ok := s.tokens[token]
	s.mu.RUnlock()
	if token == "" || !ok || entry.matchID != matchID {
		c.JSON(http.StatusNotFound, matchdto.ErrorResponse{Error: matchdto.GenericNotFoundMessage})
		return tokenEntry{}, false
	}
	return entry, true
}

func (s *Server) handleCreate(c *gin.Context) {
	var req matchdto.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, matchdto.ErrorResponse{Error: "invalid request body"})
		return
	}
	hostID := uuid.NewString()
	ext, err := s.matches.Create(c.Request.Context(), hostID, req.PlayWhite, req.JoinSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, matchdto.ErrorResponse{Error: "could not create match"})
		return
	}
	token := s.register(ext, live.SideHost, hostID)
	c.JSON(http.StatusOK, matchdto.CreateMatchResponse{
		MatchID:     ext,
		PlayerToken: token,
		PlayWhite:   req.PlayWhite,
		Status:      string(match.StatusWaiting),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Param("id")
	status, err := s.matches.Status(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchdto.StatusResponse{MatchID: id, Status: string(status)})
}

func (s *Server) handleJoin(c *gin.Context) {
	var req matchdto.JoinMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, matchdto.ErrorResponse{Error: "invalid request body"})
		return
	}
	id := c.Param("id")
	guestID := uuid.NewString()
	playsWhite, err := s.matches.Join(c.Request.Context(), id, guestID, req.JoinSecret)
	if err != nil {
		s.renderError(c, err)
		return
	}
	token := s.register(id, live.SideGuest, guestID)
	c.JSON(http.StatusOK, matchdto.JoinMatchResponse{
		MatchID:     id,
		PlayerToken: token,
		PlayWhite:   playsWhite,
		Status:      string(match.StatusActive),
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	entry, ok := s.authorize(c)
	if !ok {
		return
	}
	if err := s.matches.Cancel(c.Request.Context(), entry.matchID, entry.playerID); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchdto.CancelResponse{Status: string(match.StatusCancelled)})
}

func (s *Server) handleMove(c *gin.Context) {
	entry, ok := s.authorize(c)
	if !ok {
		return
	}
	var req matchdto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, matchdto.ErrorResponse{Error: "invalid request body"})
		return
	}
	sess, err := s.live.Session(c.Request.Context(), entry.matchID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	out, err := sess.ApplyMove(c.Request.Context(), entry.side, req.From, req.To, req.Promotion)
	switch {
	case errors.Is(err, live.ErrIllegalMove):
		c.JSON(http.StatusOK, matchdto.MoveResponse{OK: false, Reason: "illegal move"})
		return
	case errors.Is(err, live.ErrNotYourTurn):
		c.JSON(http.StatusOK, matchdto.MoveResponse{OK: false, Reason: "not your turn"})
		return
	case err != nil:
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchdto.MoveResponse{
		OK:     true,
		FEN:    out.FEN,
		Ply:    out.Ply,
		Status: string(out.Status),
	})
}

func (s *Server) handleCheckIn(c *gin.Context) {
	entry, ok := s.authorize(c)
	if !ok {
		return
	}
	sess, err := s.live.Session(c.Request.Context(), entry.matchID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	report, err := sess.CheckIn(c.Request.Context(), entry.side)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchdto.CheckInResponse{
		Status:             string(report.Status),
		Winner:             string(report.Winner),
		YourTurn:           report.YourTurn,
		DidWin:             report.DidWin,
		DidDraw:            report.DidDraw,
		OpponentSecondsAgo: report.OpponentSecondsAgo,
		OpponentOffline:    report.OpponentOffline,
		FEN:                report.FEN,
	})
}

func (s *Server) handleResign(c *gin.Context) {
	entry, ok := s.authorize(c)
	if !ok {
		return
	}
	sess, err := s.live.Session(c.Request.Context(), entry.matchID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := sess.Resign(c.Request.Context(), entry.side); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, matchdto.ResignResponse{Status: string(live.StatusResigned)})
}

func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, match.ErrNotFound):
		c.JSON(http.StatusNotFound, matchdto.ErrorResponse{Error: matchdto.GenericNotFoundMessage})
	case errors.Is(err, match.ErrBadSecret):
		c.JSON(http.StatusForbidden, matchdto.ErrorResponse{Error: "invalid join secret"})
	case errors.Is(err, match.ErrPreconditionViolated):
		c.JSON(http.StatusConflict, matchdto.ErrorResponse{Error: "operation not allowed in current match state"})
	case errors.Is(err, live.ErrGameOver):
		c.JSON(http.StatusConflict, matchdto.ErrorResponse{Error: "match already finished"})
	default:
		obslog.L().Error("http_internal_error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, matchdto.ErrorResponse{Error: "internal error"})
	}
}
