package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/apikeys/internal/apikey/domain"
	"github.com/allisson/apikeys/internal/apikey/http/dto"
	apikeyUseCase "github.com/allisson/apikeys/internal/apikey/usecase"
	apperrors "github.com/allisson/apikeys/internal/errors"
	"github.com/allisson/apikeys/internal/httputil"
	customValidation "github.com/allisson/apikeys/internal/validation"
)

// ManageAbility is the ability a token needs to call the management endpoints.
const ManageAbility = "tokens:manage"

// TokenHandler handles HTTP requests for token lifecycle operations.
type TokenHandler struct {
	tokenUseCase apikeyUseCase.TokenUseCase
	logger       *slog.Logger
}

// NewTokenHandler creates a new token handler with required dependencies.
func NewTokenHandler(tokenUseCase apikeyUseCase.TokenUseCase, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokenUseCase: tokenUseCase,
		logger:       logger,
	}
}

// IssueHandler issues a root token.
// POST /v1/tokens - Requires the tokens:manage ability.
// Returns 201 Created with the plaintext token, which is never returned again.
func (h *TokenHandler) IssueHandler(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	output, err := h.tokenUseCase.Issue(c.Request.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapIssueOutputToResponse(output))
}

// IssueGroupHandler issues a sibling token group.
// POST /v1/token-groups - Requires the tokens:manage ability.
// Returns 201 Created with the group and each member's plaintext keyed by type.
func (h *TokenHandler) IssueGroupHandler(c *gin.Context) {
	var req dto.IssueGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	output, err := h.tokenUseCase.IssueGroup(c.Request.Context(), req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapIssueGroupOutputToResponse(output))
}

// VerifyHandler returns the token that authenticated the request.
// GET /v1/verify - Requires any valid token. Returns 200 OK with token data.
func (h *TokenHandler) VerifyHandler(c *gin.Context) {
	token, ok := GetToken(c.Request.Context())
	if !ok || token == nil {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTokenToResponse(token))
}

// GetHandler retrieves a token by ID.
// GET /v1/tokens/:id - Returns 200 OK with token data (no digest).
func (h *TokenHandler) GetHandler(c *gin.Context) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}

	token, err := h.tokenUseCase.Get(c.Request.Context(), tokenID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTokenToResponse(token))
}

// GetGroupHandler retrieves a token group with its members.
// GET /v1/token-groups/:id
func (h *TokenHandler) GetGroupHandler(c *gin.Context) {
	groupID, ok := h.parseID(c)
	if !ok {
		return
	}

	group, err := h.tokenUseCase.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapGroupToResponse(group))
}

// RevokeHandler revokes a token with the requested strategy, or the type default.
// POST /v1/tokens/:id/revoke - Returns 200 OK with the tokens whose revocation changed.
func (h *TokenHandler) RevokeHandler(c *gin.Context) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}
	req, ok := h.bindStrategy(c)
	if !ok {
		return
	}

	affected, err := h.tokenUseCase.Revoke(c.Request.Context(), tokenID, req.Strategy)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRevokedTokensToResponse(req.Strategy, affected))
}

// PreviewRevocationHandler lists the tokens a revocation would affect without changing them.
// GET /v1/tokens/:id/revocation-preview?strategy=cascade
func (h *TokenHandler) PreviewRevocationHandler(c *gin.Context) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}
	req := dto.StrategyRequest{Strategy: c.Query("strategy")}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	affected, err := h.tokenUseCase.PreviewRevocation(c.Request.Context(), tokenID, req.Strategy)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRevokedTokensToResponse(req.Strategy, affected))
}

// RotateHandler replaces a token with a fresh one.
// POST /v1/tokens/:id/rotate - Returns 201 Created with the new plaintext token.
func (h *TokenHandler) RotateHandler(c *gin.Context) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}
	req, ok := h.bindStrategy(c)
	if !ok {
		return
	}

	output, err := h.tokenUseCase.Rotate(c.Request.Context(), tokenID, req.Strategy)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapRotateOutputToResponse(output))
}

// DeriveHandler creates a child token bounded by its parent.
// POST /v1/tokens/:id/derive - Returns 201 Created with the child plaintext token.
func (h *TokenHandler) DeriveHandler(c *gin.Context) {
	parentID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req dto.DeriveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	output, err := h.tokenUseCase.Derive(c.Request.Context(), parentID, req.ToDomain())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapIssueOutputToResponse(output))
}

// SiblingHandler returns the group member of the requested type.
// GET /v1/tokens/:id/siblings/:type
func (h *TokenHandler) SiblingHandler(c *gin.Context) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}

	sibling, err := h.tokenUseCase.Sibling(c.Request.Context(), tokenID, domain.TokenType(c.Param("type")))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTokenToResponse(sibling))
}

// ChildrenHandler lists the direct children of a token.
// GET /v1/tokens/:id/children?offset=0&limit=50
func (h *TokenHandler) ChildrenHandler(c *gin.Context) {
	h.listHandler(c, h.tokenUseCase.Children)
}

// DescendantsHandler lists every descendant of a token, shallowest first.
// GET /v1/tokens/:id/descendants?offset=0&limit=50
func (h *TokenHandler) DescendantsHandler(c *gin.Context) {
	h.listHandler(c, h.tokenUseCase.Descendants)
}

// RotationChainHandler lists the token followed by each token it replaced, newest first.
// GET /v1/tokens/:id/rotations?offset=0&limit=50
func (h *TokenHandler) RotationChainHandler(c *gin.Context) {
	h.listHandler(c, h.tokenUseCase.RotationChain)
}

func (h *TokenHandler) listHandler(
	c *gin.Context,
	list func(ctx context.Context, tokenID uuid.UUID) ([]*domain.Token, error),
) {
	tokenID, ok := h.parseID(c)
	if !ok {
		return
	}
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	tokens, err := list(c.Request.Context(), tokenID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTokensToListResponse(httputil.Paginate(tokens, offset, limit)))
}

func (h *TokenHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid id format: must be a valid UUID"),
			h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// bindStrategy reads an optional {"strategy": "..."} body. An empty body selects the default.
func (h *TokenHandler) bindStrategy(c *gin.Context) (dto.StrategyRequest, bool) {
	var req dto.StrategyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleValidationErrorGin(c, err, h.logger)
			return req, false
		}
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return req, false
	}
	return req, true
}
