package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/manager"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

type createSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := s.mgr.Create(tenantOf(c), req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, manager.SessionToView(session))
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.mgr.List(tenantOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]manager.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, manager.SessionToView(&sessions[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getSession(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, manager.SessionToView(session))
}

func (s *Server) startSession(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if err := s.mgr.Start(c.Request.Context(), session.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "starting"})
}

func (s *Server) stopSession(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if err := s.mgr.Stop(session.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) deleteSession(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if err := s.mgr.Delete(c.Request.Context(), session.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// sessionQR renders the current pairing payload as a PNG, for dashboards
// that show a scannable code instead of the raw payload string.
func (s *Server) sessionQR(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if session.QRCode == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pairing payload available"})
		return
	}
	png, err := qrcode.Encode(session.QRCode, qrcode.Medium, 256)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ownedSession loads the path session and enforces tenant ownership. A
// session owned by another tenant reads as not found.
func (s *Server) ownedSession(c *gin.Context) (*store.Session, bool) {
	session, err := s.mgr.Status(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if session.TenantID != tenantOf(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": manager.ErrSessionNotFound.Error()})
		return nil, false
	}
	return session, true
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, manager.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, manager.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
