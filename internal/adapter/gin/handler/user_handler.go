package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "user-records-service/internal/domain/user"
	"user-records-service/internal/usecase/user"
	pkgerrors "user-records-service/pkg/errors"
	"user-records-service/pkg/logger"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc  user.UserUsecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.UserUsecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// CreateUserRequest represents the HTTP request body for creating a user
type CreateUserRequest struct {
	FirstName string  `json:"firstName" binding:"required"`
	LastName  string  `json:"lastName" binding:"required"`
	Email     string  `json:"email" binding:"required"`
	Notes     *string `json:"notes"`
}

// UpdateUserRequest represents the HTTP request body for updating a user.
// Absent fields are left unchanged.
type UpdateUserRequest struct {
	FirstName       *string                 `json:"firstName"`
	LastName        *string                 `json:"lastName"`
	Email           *string                 `json:"email"`
	Notes           *string                 `json:"notes"`
	SentimentScore  *float64                `json:"sentimentScore"`
	ExtractedTags   []string                `json:"extractedTags"`
	EngagementLevel *domain.EngagementLevel `json:"engagementLevel"`
}

// ListUsersResponse represents the HTTP response for listing users
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination *Pagination   `json:"pagination,omitempty"`
}

// Pagination represents pagination information
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateUser handles POST /v1/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	log := logger.WithContext(c.Request.Context(), h.log)

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid create user request", zap.Error(err))
		h.badRequest(c, err.Error())
		return
	}

	created, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Notes:     req.Notes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetUser handles GET /v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	u, err := h.uc.GetUser(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if u == nil {
		h.handleError(c, pkgerrors.NewNotFoundError("user", id.String()))
		return
	}

	c.JSON(http.StatusOK, u)
}

// UpdateUser handles PUT and PATCH /v1/users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(c.Request.Context(), h.log).Warn("invalid update user request", zap.Error(err))
		h.badRequest(c, err.Error())
		return
	}

	updated, err := h.uc.UpdateUser(c.Request.Context(), id, user.UpdateUserRequest{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Notes:           req.Notes,
		SentimentScore:  req.SentimentScore,
		ExtractedTags:   req.ExtractedTags,
		EngagementLevel: req.EngagementLevel,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteUser handles DELETE /v1/users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	deleted, err := h.uc.DeleteUser(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !deleted {
		h.handleError(c, pkgerrors.NewNotFoundError("user", id.String()))
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUsers handles GET /v1/users. Without a limit every match is returned.
// page and limit must be positive integers when present.
func (h *UserHandler) ListUsers(c *gin.Context) {
	req := user.ListUsersRequest{Query: c.Query("query")}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	limit, err := positiveQueryInt(c, "limit", 0)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if limit > 0 {
		req.Page = page
		req.Limit = limit
	}

	resp, err := h.uc.ListUsers(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := ListUsersResponse{Users: resp.Users}
	if out.Users == nil {
		out.Users = []domain.User{}
	}
	if p := resp.Pagination; p != nil {
		out.Pagination = &Pagination{
			Total:      p.Total,
			Page:       p.Page,
			Limit:      p.Limit,
			TotalPages: p.TotalPages,
		}
	}

	c.JSON(http.StatusOK, out)
}

// positiveQueryInt reads an optional positive integer query parameter.
func positiveQueryInt(c *gin.Context, name string, def int64) (int64, error) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

func (h *UserHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		logger.WithContext(c.Request.Context(), h.log).Warn("invalid user id", zap.String("id", idStr))
		h.badRequest(c, "user id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *UserHandler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(pkgerrors.CodeValidation),
		Message: msg,
	})
}

// handleError converts usecase errors to HTTP responses. Errors without a
// status become an opaque 500.
func (h *UserHandler) handleError(c *gin.Context, err error) {
	log := logger.WithContext(c.Request.Context(), h.log).With(zap.String("route", c.FullPath()))

	var statuser pkgerrors.HTTPStatuser
	if !errors.As(err, &statuser) {
		log.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   string(pkgerrors.CodeInternal),
			Message: "an internal error occurred",
		})
		return
	}

	status := statuser.HTTPStatus()
	code := pkgerrors.CodeOf(err)
	msg := err.Error()
	switch {
	case code == pkgerrors.CodeInternal:
		log.Error("request failed", zap.Error(err))
		msg = "an internal error occurred"
	case status >= http.StatusInternalServerError:
		log.Error("request failed", zap.Error(err))
	default:
		log.Debug("request rejected", zap.String("code", string(code)), zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error:   string(code),
		Message: msg,
	})
}
