package controller

import (
	"tarot-room-be/internal/dto"
	"tarot-room-be/internal/pkg/serverutils"
	"tarot-room-be/internal/service"
	"tarot-room-be/pkg/gateway"
	"tarot-room-be/pkg/identity"
	"tarot-room-be/pkg/reading"

	"github.com/gofiber/fiber/v2"
)

type IReadingController interface {
	RegisterRoutes(r fiber.Router, middleware ...fiber.Handler)
	CreateSession(ctx *fiber.Ctx) error
	ShowSession(ctx *fiber.Ctx) error
	UpdateSession(ctx *fiber.Ctx) error
	ListParticipants(ctx *fiber.Ctx) error
	InsertParticipant(ctx *fiber.Ctx) error
	LookupParticipant(ctx *fiber.Ctx) error
	TouchParticipant(ctx *fiber.Ctx) error
	RenameParticipant(ctx *fiber.Ctx) error
	DeactivateParticipant(ctx *fiber.Ctx) error
	EnsureProfile(ctx *fiber.Ctx) error
	DeleteProfile(ctx *fiber.Ctx) error
	MigrateOwnership(ctx *fiber.Ctx) error
}

type readingController struct {
	sessions     service.IReadingSessionService
	participants service.IParticipantService
	profiles     service.IProfileService
	migrations   service.IMigrationService
}

func NewReadingController(
	sessions service.IReadingSessionService,
	participants service.IParticipantService,
	profiles service.IProfileService,
	migrations service.IMigrationService,
) IReadingController {
	return &readingController{
		sessions:     sessions,
		participants: participants,
		profiles:     profiles,
		migrations:   migrations,
	}
}

// RegisterRoutes mounts the reading API. middleware must resolve the caller
// (serverutils.CallerMiddleware); extra handlers such as the websocket stream
// are added by their owners on the returned group.
func (c *readingController) RegisterRoutes(r fiber.Router, middleware ...fiber.Handler) {
	h := r.Group("/reading/v1")
	for _, m := range middleware {
		h.Use(m)
	}

	h.Post("/sessions", c.CreateSession)
	h.Get("/sessions/:id", c.ShowSession)
	h.Patch("/sessions/:id", c.UpdateSession)
	h.Get("/sessions/:id/participants", c.ListParticipants)
	h.Post("/sessions/:id/participants", c.InsertParticipant)
	h.Get("/sessions/:id/participants/lookup", c.LookupParticipant)

	h.Post("/participants/:id/touch", c.TouchParticipant)
	h.Patch("/participants/:id", c.RenameParticipant)
	h.Post("/participants/:id/deactivate", c.DeactivateParticipant)

	h.Put("/profiles/:id", c.EnsureProfile)
	h.Delete("/profiles/:id", c.DeleteProfile)

	h.Post("/migrations", c.MigrateOwnership)
}

func (c *readingController) CreateSession(ctx *fiber.Ctx) error {
	caller := serverutils.Caller(ctx)

	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.HostUserID != nil && *req.HostUserID != caller.ID {
		return serverutils.NewAppError(fiber.StatusForbidden, "host must be the caller")
	}

	res, err := c.sessions.Create(ctx.UserContext(), gateway.NewSession{DeckID: req.DeckID, HostUserID: req.HostUserID})
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *readingController) ShowSession(ctx *fiber.Ctx) error {
	res, err := c.sessions.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session", res))
}

func (c *readingController) UpdateSession(ctx *fiber.Ctx) error {
	var patch reading.Patch
	if err := ctx.BodyParser(&patch); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid patch")
	}

	res, err := c.sessions.Update(ctx.UserContext(), ctx.Params("id"), serverutils.Caller(ctx), patch)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session updated", res))
}

func (c *readingController) ListParticipants(ctx *fiber.Ctx) error {
	res, err := c.participants.List(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Participants", res))
}

func (c *readingController) InsertParticipant(ctx *fiber.Ctx) error {
	caller := serverutils.Caller(ctx)

	var req dto.InsertParticipantRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	for _, id := range []*string{req.UserID, req.AnonymousID} {
		if id != nil && *id != caller.ID {
			return serverutils.NewAppError(fiber.StatusForbidden, "participants can only be added for the caller")
		}
	}

	res, err := c.participants.Insert(ctx.UserContext(), gateway.NewParticipant{
		SessionID:   ctx.Params("id"),
		UserID:      req.UserID,
		AnonymousID: req.AnonymousID,
		Name:        req.Name,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Participant joined", res))
}

func (c *readingController) LookupParticipant(ctx *fiber.Ctx) error {
	identityID := ctx.Query("identity", serverutils.Caller(ctx).ID)
	res, err := c.participants.FindActive(ctx.UserContext(), ctx.Params("id"), identityID)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Participant", res))
}

func (c *readingController) TouchParticipant(ctx *fiber.Ctx) error {
	if err := c.participants.Touch(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Presence refreshed", nil))
}

func (c *readingController) RenameParticipant(ctx *fiber.Ctx) error {
	var req dto.RenameParticipantRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.participants.Rename(ctx.UserContext(), ctx.Params("id"), req.Name)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Participant renamed", res))
}

func (c *readingController) DeactivateParticipant(ctx *fiber.Ctx) error {
	if err := c.participants.Deactivate(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Participant left", nil))
}

func (c *readingController) EnsureProfile(ctx *fiber.Ctx) error {
	caller := serverutils.Caller(ctx)
	id := ctx.Params("id")
	if id != caller.ID {
		return serverutils.NewAppError(fiber.StatusForbidden, "profiles can only be created for the caller")
	}

	var req dto.EnsureProfileRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.profiles.Ensure(ctx.UserContext(), id, req.DisplayName, caller.Anonymous); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Profile ready", nil))
}

// DeleteProfile lets a caller remove its own profile, and a signed-in user
// retire a guest record after taking it over.
func (c *readingController) DeleteProfile(ctx *fiber.Ctx) error {
	caller := serverutils.Caller(ctx)
	id := ctx.Params("id")
	if id != caller.ID && (caller.Anonymous || !identity.IsGuestID(id)) {
		return serverutils.NewAppError(fiber.StatusForbidden, "not allowed to delete this profile")
	}

	if err := c.profiles.Delete(ctx.UserContext(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Profile deleted", nil))
}

func (c *readingController) MigrateOwnership(ctx *fiber.Ctx) error {
	caller := serverutils.Caller(ctx)
	if caller.Anonymous {
		return serverutils.NewAppError(fiber.StatusUnauthorized, "sign in to migrate a guest")
	}

	var req dto.MigrateOwnershipRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.NewAppError(fiber.StatusBadRequest, "invalid body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if req.UserID != caller.ID {
		return serverutils.NewAppError(fiber.StatusForbidden, "guests can only be migrated to the caller")
	}

	res, err := c.migrations.MigrateOwnership(ctx.UserContext(), req.GuestID, req.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Guest migrated", res))
}
