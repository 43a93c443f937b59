package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/toptabled/internal/middleware"
	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/service"
)

type VoteHandler struct {
	reconciler *service.VoteReconciler
}

func NewVoteHandler(reconciler *service.VoteReconciler) *VoteHandler {
	return &VoteHandler{reconciler: reconciler}
}

// Submit handles POST /api/votes. Clicking the same direction twice revokes
// the vote.
func (h *VoteHandler) Submit(c fiber.Ctx) error {
	ident := middleware.IdentityFrom(c)
	if !ident.SignedIn() {
		return serviceError(c, service.ErrNotAuthenticated, "")
	}

	var req model.VoteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	itemID, errMsg := middleware.ValidateItemID(req.ItemID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}
	dir, errMsg := middleware.ValidateDirection(string(req.Direction))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_DIRECTION", errMsg)
	}

	res, err := h.reconciler.ApplyVote(c.Context(), ident, itemID, dir)
	if err != nil {
		return serviceError(c, err, "Failed to submit vote")
	}
	return c.JSON(res)
}

// List handles GET /api/votes: the caller's vote index.
func (h *VoteHandler) List(c fiber.Ctx) error {
	ident := middleware.IdentityFrom(c)
	if !ident.SignedIn() {
		return serviceError(c, service.ErrNotAuthenticated, "")
	}
	if err := h.reconciler.EnsureVotes(c.Context(), ident); err != nil {
		return serviceError(c, err, "Failed to load votes")
	}
	return c.JSON(fiber.Map{"votes": h.reconciler.VoteIndex(ident)})
}
