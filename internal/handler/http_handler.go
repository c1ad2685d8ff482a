package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-watchparty/internal/audit"
	"github.com/weiawesome/wes-io-watchparty/internal/domain"
	"github.com/weiawesome/wes-io-watchparty/internal/service"
	"github.com/weiawesome/wes-io-watchparty/pkg/jwt"
	"github.com/weiawesome/wes-io-watchparty/pkg/log"
	"github.com/weiawesome/wes-io-watchparty/pkg/middleware"
	"github.com/weiawesome/wes-io-watchparty/pkg/response"
)

// Handler handles HTTP requests for videos, watch parties and dev login.
type Handler struct {
	videoService   service.VideoService
	partyService   service.PartyService
	tokens         *jwt.Manager
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(videoService service.VideoService, partyService service.PartyService, tokens *jwt.Manager) *Handler {
	return &Handler{
		videoService:   videoService,
		partyService:   partyService,
		tokens:         tokens,
		authMiddleware: middleware.NewAuthMiddleware(tokens),
	}
}

// TokenRequest is the body of a dev login.
type TokenRequest struct {
	Username string `json:"username" binding:"required,min=1,max=64"`
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/auth/token", h.IssueToken)

		videos := api.Group("/videos")
		{
			videos.GET("", h.ListVideos)
			videos.GET("/:id", h.GetVideo)
			videos.GET("/:id/stream-info", h.GetStreamInfo)
			videos.POST("/:id/like", h.authMiddleware.RequireAuth(), h.ToggleLike)
		}

		parties := api.Group("/watch-party")
		{
			parties.GET("", h.ListParties)
			parties.GET("/:code", h.GetParty)

			// Protected routes
			parties.POST("", h.authMiddleware.RequireAuth(), h.CreateParty)
			parties.POST("/:code/join", h.authMiddleware.RequireAuth(), h.JoinParty)
			parties.POST("/:code/leave", h.authMiddleware.RequireAuth(), h.LeaveParty)
			parties.POST("/:code/close", h.authMiddleware.RequireAuth(), h.CloseParty)
			parties.POST("/:code/start-video/:videoId", h.authMiddleware.RequireAuth(), h.StartVideo)
		}
	}
}

// IssueToken issues a bearer token for any username. It exists for local
// development; there is no password check.
func (h *Handler) IssueToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		l.Error().Err(err).Msg("failed to issue token")
		response.InternalError(c, "failed to issue token")
		return
	}

	audit.Log(ctx, audit.ActionIssueToken, req.Username, "dev token issued")
	response.Success(c, gin.H{
		"access_token": token,
		"expires_at":   expiresAt,
		"username":     req.Username,
	})
}

func (h *Handler) ListVideos(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	videos, err := h.videoService.ListVideos(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list videos")
		response.InternalError(c, "failed to list videos")
		return
	}
	response.Success(c, videos)
}

// GetVideo returns metadata and counts a view.
func (h *Handler) GetVideo(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	id, ok := videoIDParam(c, "id")
	if !ok {
		return
	}

	video, err := h.videoService.GetVideo(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			response.NotFound(c, "video not found")
		case errors.Is(err, domain.ErrNotReleased):
			response.Forbidden(c, err.Error())
		default:
			l.Error().Err(err).Int64(log.FieldVideoID, id).Msg("failed to get video")
			response.InternalError(c, "failed to get video")
		}
		return
	}
	response.Success(c, video)
}

func (h *Handler) GetStreamInfo(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	id, ok := videoIDParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.videoService.StreamInfo(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		l.Error().Err(err).Int64(log.FieldVideoID, id).Msg("failed to get stream info")
		response.InternalError(c, "failed to get stream info")
		return
	}
	response.Success(c, snap)
}

func (h *Handler) ToggleLike(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	id, ok := videoIDParam(c, "id")
	if !ok {
		return
	}

	res, err := h.videoService.ToggleLike(ctx, id, middleware.GetUsername(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		l.Error().Err(err).Int64(log.FieldVideoID, id).Msg("failed to toggle like")
		response.InternalError(c, "failed to toggle like")
		return
	}
	response.Success(c, res)
}

func (h *Handler) CreateParty(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateWatchPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create watch party request")
		response.BadRequest(c, err.Error())
		return
	}

	party, err := h.partyService.Create(ctx, middleware.GetUsername(c), &req)
	if err != nil {
		l.Error().Err(err).Msg("failed to create watch party")
		response.InternalError(c, "failed to create watch party")
		return
	}
	response.Created(c, party)
}

// ListParties lists active parties.
func (h *Handler) ListParties(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	parties, err := h.partyService.ListActive(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list watch parties")
		response.InternalError(c, "failed to list watch parties")
		return
	}
	response.Success(c, parties)
}

func (h *Handler) GetParty(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	party, err := h.partyService.Get(ctx, code)
	if err != nil {
		partyError(c, err, code, "failed to get watch party")
		return
	}
	response.Success(c, party)
}

func (h *Handler) JoinParty(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	party, err := h.partyService.Join(ctx, code, middleware.GetUsername(c))
	if err != nil {
		partyError(c, err, code, "failed to join watch party")
		return
	}
	response.Success(c, party)
}

func (h *Handler) LeaveParty(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	if err := h.partyService.Leave(ctx, code, middleware.GetUsername(c)); err != nil {
		partyError(c, err, code, "failed to leave watch party")
		return
	}
	response.NoContent(c)
}

// CloseParty closes a party. Only its owner may do this.
func (h *Handler) CloseParty(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	if err := h.partyService.Close(ctx, code, middleware.GetUsername(c)); err != nil {
		partyError(c, err, code, "failed to close watch party")
		return
	}
	response.NoContent(c)
}

func (h *Handler) StartVideo(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	videoID, ok := videoIDParam(c, "videoId")
	if !ok {
		return
	}

	if err := h.partyService.StartVideo(ctx, code, middleware.GetUsername(c), videoID); err != nil {
		partyError(c, err, code, "failed to start video")
		return
	}
	response.NoContent(c)
}

func partyError(c *gin.Context, err error, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, "watch party or video not found")
	case errors.Is(err, domain.ErrNotOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrPartyClosed):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomCode, code).Msg(msg)
		response.InternalError(c, msg)
	}
}

func videoIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid video id")
		return 0, false
	}
	return id, true
}
