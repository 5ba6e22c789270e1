package identity

import (
	"net/http"

	"github.com/klokku/treasury/internal/rest"
	log "github.com/sirupsen/logrus"
)

type UserDTO struct {
	Id       int      `json:"id,omitempty"`
	Uid      string   `json:"uid"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func identityToDTO(id Identity) UserDTO {
	roles := make([]string, 0, len(id.Roles))
	for _, r := range id.Roles {
		roles = append(roles, string(r))
	}
	return UserDTO{Id: id.UserId, Uid: id.Uid, Username: id.Username, Roles: roles}
}

// CreateUser godoc
// @Summary Create a new user
// @Description Register a user and grant roles. Requires the administrator role.
// @Tags User
// @Accept json
// @Produce json
// @Param user body UserDTO true "User"
// @Success 201 {object} UserDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 403 {object} rest.ErrorResponse "Not an administrator"
// @Router /api/user [post]
// @Security XUserId
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating user")
	var dto UserDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	roles := make([]Role, 0, len(dto.Roles))
	for _, role := range dto.Roles {
		roles = append(roles, Role(role))
	}
	created, err := h.service.CreateUser(r.Context(), dto.Uid, dto.Username, roles)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	log.Tracef("Created user: %+v", created)
	rest.WriteJSON(w, http.StatusCreated, identityToDTO(created))
}

// CurrentUser godoc
// @Summary Get current user
// @Description Retrieve the calling user and their roles
// @Tags User
// @Produce json
// @Success 200 {object} UserDTO
// @Router /api/user/current [get]
// @Security XUserId
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, identityToDTO(current))
}
