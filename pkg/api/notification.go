package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo"
	"github.com/nsyszr/notify/pkg/api/resource"
	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) handleFetchNotifications(c echo.Context) error {
	m, err := h.store.Notifications().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.JSON(http.StatusOK, m)
}

func (h *Handler) handleFetchUserNotifications(c echo.Context) error {
	username := c.Param("username")
	if _, err := h.store.Users().FindByUsername(username); err != nil {
		if err == storage.ErrNotFound {
			return c.JSON(http.StatusNotFound, resource.NewError("user not found: "+username))
		}
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	m, err := h.store.Notifications().FetchByRecipient(username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.JSON(http.StatusOK, m)
}

func (h *Handler) handleGetStats(c echo.Context) error {
	notificationCount, err := h.store.Notifications().Count()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}
	userCount, err := h.store.Users().Count()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.JSON(http.StatusOK, &model.Stats{
		TotalNotifications: notificationCount,
		TotalUsers:         userCount,
	})
}

func (h *Handler) handleSendNotification(c echo.Context) error {
	r := &resource.SendNotificationRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError("invalid payload"))
	}

	priority := model.Priority(r.Priority)
	if !priority.Valid() {
		return c.JSON(http.StatusBadRequest, resource.NewError("unknown priority: "+r.Priority))
	}

	rateKey := r.Username
	if !h.guard.Allow(rateKey) {
		return c.JSON(http.StatusTooManyRequests,
			resource.NewError("rate limit exceeded, wait before sending another notification"))
	}

	m := &model.Notification{
		Message:  r.Message,
		Priority: priority,
		Status:   model.StatusPending,
	}

	if r.Username != "" {
		user, err := h.store.Users().FindByUsername(r.Username)
		if err != nil {
			if err == storage.ErrNotFound {
				return c.JSON(http.StatusNotFound, resource.NewError("user not found: "+r.Username))
			}
			return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
		}
		m.Recipient = user
	}

	// Save the PENDING notification first: the store is the source of
	// truth, the queue only carries the delivery.
	if err := h.store.Notifications().Create(m); err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	data, err := json.Marshal(m)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}
	if err := h.pub.Publish(queueSubject(priority), data); err != nil {
		log.Error("api: failed to enqueue notification: ", err)
		return c.JSON(http.StatusInternalServerError, resource.NewError("failed to enqueue notification"))
	}

	log.Infof("api: notification %d enqueued on %s", m.ID, queueSubject(priority))
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) handleDeleteNotification(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError("invalid notification id"))
	}

	if err := h.store.Notifications().Delete(id); err != nil {
		if err == storage.ErrNotFound {
			return c.JSON(http.StatusNotFound, resource.NewError("notification not found"))
		}
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.NoContent(http.StatusNoContent)
}

func queueSubject(p model.Priority) string {
	switch p {
	case model.PriorityCritical, model.PriorityWarning:
		return subjectQueueCritical
	default:
		return subjectQueueNormal
	}
}
