package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/middleware"
	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/service"
)

type ItemHandler struct {
	catalog      *service.CatalogService
	reconciler   *service.VoteReconciler
	trendingSize int
}

func NewItemHandler(catalog *service.CatalogService, reconciler *service.VoteReconciler, trendingSize int) *ItemHandler {
	return &ItemHandler{catalog: catalog, reconciler: reconciler, trendingSize: trendingSize}
}

// List handles GET /api/items?tags=a,b&page=0
func (h *ItemHandler) List(c fiber.Ctx) error {
	tags, errMsg := middleware.ValidateTagList(fiber.Query[string](c, service.TagsParam))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", errMsg)
	}
	page, errMsg := middleware.ValidatePage(fiber.Query[string](c, "page"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", errMsg)
	}

	resp, err := h.catalog.Page(c.Context(), middleware.IdentityFrom(c), tags, page)
	if err != nil {
		return serviceError(c, err, "Failed to list items")
	}
	return c.JSON(resp)
}

// Get handles GET /api/items/:itemId
func (h *ItemHandler) Get(c fiber.Ctx) error {
	itemID, errMsg := middleware.ValidateItemID(c.Params("itemId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", errMsg)
	}

	ident := middleware.IdentityFrom(c)
	it, err := h.catalog.Item(ident, itemID)
	if errors.Is(err, service.ErrItemNotFound) {
		// the store lags the ledger until the next resync
		if fresh, lerr := h.catalog.Lookup(c.Context(), itemID); lerr == nil && service.Visible(ident, *fresh) {
			it, err = *fresh, nil
		}
	}
	if err != nil {
		return serviceError(c, err, "Failed to get item")
	}
	return c.JSON(it)
}

// Trending handles GET /api/trending. The tag selection never applies here.
func (h *ItemHandler) Trending(c fiber.Ctx) error {
	items := service.NewTagFilter(h.trendingSize).Trending(h.catalog.Store().Items(), middleware.IdentityFrom(c))
	return c.JSON(fiber.Map{"items": items})
}

// Submit handles POST /api/items
func (h *ItemHandler) Submit(c fiber.Ctx) error {
	ident := middleware.IdentityFrom(c)
	if !ident.SignedIn() {
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "NOT_AUTHENTICATED", "Sign in to submit")
	}

	var req model.SubmitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	it, err := h.catalog.Submit(c.Context(), ident, req)
	if err != nil {
		return serviceError(c, err, "Failed to submit item")
	}
	return c.Status(fiber.StatusCreated).JSON(it)
}

// View handles GET /api/view?tags=a,b: the full read model for the caller.
func (h *ItemHandler) View(c fiber.Ctx) error {
	ident := middleware.IdentityFrom(c)
	if _, errMsg := middleware.ValidateTagList(fiber.Query[string](c, service.TagsParam)); errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_PARAM", errMsg)
	}

	if err := h.reconciler.EnsureVotes(c.Context(), ident); err != nil {
		logging.Logger.Warn().Err(err).Msg("view: load votes")
	}

	session := service.NewSession(service.NewStaticIdentityProvider(ident), h.reconciler, h.catalog, h.trendingSize)
	session.RestoreQuery(string(c.Request().URI().QueryString()))
	return c.JSON(session.View(c.Context()))
}
