package controller

import (
	"strconv"
	"strings"
	"time"

	"codearena/internal/arena/ws"
	judgemodel "codearena/internal/judge/model"
	judgerepo "codearena/internal/judge/repository"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/rating"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ArenaController handles the HTTP surface of the arena service: the
// websocket upgrade, practice submissions and rating lookups. Match play
// itself runs over the websocket gateway.
type ArenaController struct {
	hub     *ws.Hub
	intake  *judgesvc.IntakeService
	subs    judgerepo.SubmissionRepository
	ratings rating.Store
}

func NewArenaController(hub *ws.Hub, intake *judgesvc.IntakeService, subs judgerepo.SubmissionRepository, ratings rating.Store) *ArenaController {
	return &ArenaController{hub: hub, intake: intake, subs: subs, ratings: ratings}
}

// RegisterRoutes mounts all arena endpoints on the router.
func (h *ArenaController) RegisterRoutes(router *gin.Engine, verifier *TokenVerifier) {
	router.GET("/health", h.Health)

	auth := AuthMiddleware(verifier)
	router.GET("/ws", auth, h.WebSocket)

	api := router.Group("/api/v1", auth)
	api.POST("/submissions", h.CreatePracticeSubmission)
	api.GET("/submissions/:id", h.GetSubmission)
	api.GET("/users/:id/ratings", h.GetRatings)
}

// Health reports service liveness.
func (h *ArenaController) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// WebSocket upgrades an authenticated connection and hands it to the hub.
func (h *ArenaController) WebSocket(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing identity")
		return
	}
	ws.ServeWS(h.hub, c.Writer, c.Request, userID)
}

// PracticeSubmitRequest is the payload for an out-of-match submission.
type PracticeSubmitRequest struct {
	ProblemID      int64  `json:"problemId" binding:"required"`
	LanguageID     string `json:"languageId" binding:"required"`
	SourceCode     string `json:"sourceCode" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// CreatePracticeSubmission accepts a practice submission and queues it for judging.
func (h *ArenaController) CreatePracticeSubmission(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.AbortWithErrorCode(c, pkgerrors.Unauthorized, "missing identity")
		return
	}

	var req PracticeSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	res, err := h.intake.Submit(c.Request.Context(), judgesvc.SubmitRequest{
		ProblemID:      req.ProblemID,
		UserID:         userID,
		LanguageID:     req.LanguageID,
		SourceCode:     req.SourceCode,
		IdempotencyKey: req.IdempotencyKey,
		Scene:          judgemodel.ScenePractice,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SubmissionView is the API representation of a judged submission.
type SubmissionView struct {
	SubmissionID string     `json:"submissionId"`
	MatchID      string     `json:"matchId,omitempty"`
	ProblemID    int64      `json:"problemId"`
	UserID       int64      `json:"userId"`
	LanguageID   string     `json:"languageId"`
	SourceCode   string     `json:"sourceCode,omitempty"`
	Scene        string     `json:"scene"`
	Verdict      string     `json:"verdict"`
	Passed       int        `json:"passed"`
	Total        int        `json:"total"`
	TimeMS       int64      `json:"timeMs"`
	MemoryKB     int64      `json:"memoryKb"`
	CodeLength   int        `json:"codeLength"`
	CreatedAt    time.Time  `json:"createdAt"`
	JudgedAt     *time.Time `json:"judgedAt,omitempty"`
}

// GetSubmission returns one submission. Source code is only visible to its author.
func (h *ArenaController) GetSubmission(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}

	sub, err := h.subs.GetByID(c.Request.Context(), nil, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	view := SubmissionView{
		SubmissionID: sub.SubmissionID,
		MatchID:      sub.MatchID,
		ProblemID:    sub.ProblemID,
		UserID:       sub.UserID,
		LanguageID:   sub.LanguageID,
		Scene:        sub.Scene,
		Verdict:      sub.Verdict,
		Passed:       sub.Passed,
		Total:        sub.Total,
		TimeMS:       sub.TimeMS,
		MemoryKB:     sub.MemoryKB,
		CodeLength:   sub.CodeLength,
		CreatedAt:    sub.CreatedAt,
		JudgedAt:     sub.JudgedAt,
	}
	if userID, ok := currentUserID(c); ok && userID == sub.UserID {
		view.SourceCode = sub.SourceCode
	}
	response.Success(c, view)
}

// DimensionRating is one skill axis in a rating profile.
type DimensionRating struct {
	Dimension string  `json:"dimension"`
	Rating    float64 `json:"rating"`
	RD        float64 `json:"rd"`
}

// RatingProfile is the full rating view for a user.
type RatingProfile struct {
	UserID     int64             `json:"userId"`
	Composite  float64           `json:"composite"`
	Tier       rating.Tier       `json:"tier"`
	Dimensions []DimensionRating `json:"dimensions"`
}

// GetRatings returns the per-dimension ratings, composite and tier for a user.
func (h *ArenaController) GetRatings(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(c, "Invalid user id")
		return
	}

	all, err := h.ratings.GetAllRatings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	profile := RatingProfile{
		UserID:     userID,
		Composite:  rating.Composite(all),
		Tier:       rating.TierFor(rating.Composite(all)),
		Dimensions: make([]DimensionRating, 0, len(rating.Dimensions)),
	}
	for _, dim := range rating.Dimensions {
		r, ok := all[dim]
		if !ok {
			r = rating.NewRating()
		}
		r = rating.Round(r)
		profile.Dimensions = append(profile.Dimensions, DimensionRating{
			Dimension: string(dim),
			Rating:    r.Rating,
			RD:        r.RD,
		})
	}
	response.Success(c, profile)
}
