package controller

import (
	"classlive-be/internal/dto"
	"classlive-be/internal/pkg/serverutils"
	"classlive-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IPresenceController interface {
	RegisterRoutes(r fiber.Router)
	Heartbeat(ctx *fiber.Ctx) error
	MarkOffline(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Query(ctx *fiber.Ctx) error
}

type presenceController struct {
	service service.IPresenceService
}

func NewPresenceController(service service.IPresenceService) IPresenceController {
	return &presenceController{service: service}
}

func (c *presenceController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/presence/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("heartbeat", c.Heartbeat)
	h.Post("offline", c.MarkOffline)
	h.Post("query", c.Query)
	h.Get(":userId", c.Show)
}

func (c *presenceController) Heartbeat(ctx *fiber.Ctx) error {
	var req dto.HeartbeatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	c.service.Heartbeat(ctx.Context(), req.UserId, req.Role)

	return ctx.JSON(serverutils.SuccessResponse("Success heartbeat", nil))
}

func (c *presenceController) MarkOffline(ctx *fiber.Ctx) error {
	var req dto.MarkOfflineRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	c.service.MarkOffline(ctx.Context(), req.UserId)

	return ctx.JSON(serverutils.SuccessResponse("Success mark offline", nil))
}

func (c *presenceController) Show(ctx *fiber.Ctx) error {
	userId := ctx.Params("userId")

	res, err := c.service.Get(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get presence", res))
}

func (c *presenceController) Query(ctx *fiber.Ctx) error {
	var req dto.PresenceQueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.GetMany(ctx.Context(), req.UserIds)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success query presence", res))
}
