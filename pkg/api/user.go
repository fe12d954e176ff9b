package api

import (
	"net/http"

	"github.com/labstack/echo"
	"github.com/nsyszr/notify/pkg/api/resource"
	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
)

func (h *Handler) handleFetchUsers(c echo.Context) error {
	m, err := h.store.Users().FetchAll()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.JSON(http.StatusOK, m)
}

func (h *Handler) handleCreateUser(c echo.Context) error {
	r := &resource.CreateUserRequest{}
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, resource.NewError("invalid payload"))
	}
	if r.Username == "" {
		return c.JSON(http.StatusBadRequest, resource.NewError("username is required"))
	}

	m := &model.User{
		Username:             r.Username,
		NotificationsEnabled: r.NotificationsEnabled,
	}
	if err := h.store.Users().Create(m); err != nil {
		if err == storage.ErrExists {
			return c.JSON(http.StatusConflict, resource.NewError("user already exists: "+r.Username))
		}
		return c.JSON(http.StatusInternalServerError, resource.NewError(err.Error()))
	}

	return c.JSON(http.StatusCreated, m)
}
