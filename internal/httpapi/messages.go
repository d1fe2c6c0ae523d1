package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cesar59xxx/eeeeeeee/internal/manager"
)

type sendMessageRequest struct {
	To   string `json:"to" binding:"required"`
	Body string `json:"body" binding:"required"`
}

func (s *Server) sendMessage(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := s.mgr.Send(c.Request.Context(), session.ID, req.To, req.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, manager.MessageToView(msg))
}

func (s *Server) listContacts(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	contacts, err := s.mgr.Contacts(session.ID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]manager.ContactView, 0, len(contacts))
	for i := range contacts {
		views = append(views, manager.ContactToView(&contacts[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) listMessages(c *gin.Context) {
	session, ok := s.ownedSession(c)
	if !ok {
		return
	}
	contactID, err := strconv.ParseInt(c.Param("contactId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}
	beforeID, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := s.mgr.Messages(session.ID, contactID, beforeID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]manager.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, manager.MessageToView(&msgs[i]))
	}
	c.JSON(http.StatusOK, views)
}
