package handler

import (
	"net/http"

	matchDto "anoa.com/lostfound/internal/modules/matching/dto"
	matching "anoa.com/lostfound/internal/modules/matching/service"
	"anoa.com/lostfound/pkg/response"
	"anoa.com/lostfound/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Enqueuer hands an item to the background match workers.
type Enqueuer interface {
	Enqueue(itemID uuid.UUID) bool
}

type MatchHandler struct {
	service matching.MatchService
	queue   Enqueuer
}

func NewMatchHandler(service matching.MatchService, queue Enqueuer) *MatchHandler {
	return &MatchHandler{service: service, queue: queue}
}

func (h *MatchHandler) GetSuggestions(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	suggestions, err := h.service.GetUserMatchSuggestions(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": suggestions})
}

func (h *MatchHandler) ManualMatch(c *gin.Context) {
	var req matchDto.ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	itemA, itemB := uuid.MustParse(req.ItemAID), uuid.MustParse(req.ItemBID)
	result, err := h.service.ProcessManualMatch(c.Request.Context(), itemA, itemB, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, matchDto.ManualMatchResponse{
		ItemAID: itemA,
		ItemBID: itemB,
		Score:   result.Score,
		Created: result.Created,
	})
}

// TriggerItem is called by the item service after an item is created.
func (h *MatchHandler) TriggerItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	queued := h.queue.Enqueue(itemID)
	status := http.StatusAccepted
	if !queued {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, matchDto.TriggerResponse{ItemID: itemID, Queued: queued})
}

func (h *MatchHandler) RunSweep(c *gin.Context) {
	result := h.service.RunGlobalMatching(c.Request.Context())
	c.JSON(http.StatusOK, result)
}
