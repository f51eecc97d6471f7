package controller

import (
	"classlive-be/internal/dto"
	"classlive-be/internal/pkg/serverutils"
	"classlive-be/internal/repository/contract"
	"classlive-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	ListByTeacher(ctx *fiber.Ctx) error
	AdvanceSlide(ctx *fiber.Ctx) error
	UnlockSlide(ctx *fiber.Ctx) error
	SetLock(ctx *fiber.Ctx) error
	Pause(ctx *fiber.Ctx) error
	Resume(ctx *fiber.Ctx) error
	End(ctx *fiber.Ctx) error
	Join(ctx *fiber.Ctx) error
	Leave(ctx *fiber.Ctx) error
	UpdateProgress(ctx *fiber.Ctx) error
	SetTeacherNote(ctx *fiber.Ctx) error
	PostChatMessage(ctx *fiber.Ctx) error
	RaiseHand(ctx *fiber.Ctx) error
	LowerHand(ctx *fiber.Ctx) error
}

type sessionController struct {
	sessionService    service.ISessionService
	membershipService service.IMembershipService
	reaperService     service.IReaperService
	repo              contract.SessionRepository
}

func NewSessionController(
	sessionService service.ISessionService,
	membershipService service.IMembershipService,
	reaperService service.IReaperService,
	repo contract.SessionRepository,
) ISessionController {
	return &sessionController{
		sessionService:    sessionService,
		membershipService: membershipService,
		reaperService:     reaperService,
		repo:              repo,
	}
}

// requireOwner rejects teacher-only mutations issued by anyone other than
// the session's teacher. Missing sessions fall through to the service call
// so the response stays a 404, not a 403.
func (c *sessionController) requireOwner(ctx *fiber.Ctx, sessionId string) error {
	session, err := c.repo.Get(ctx.Context(), sessionId)
	if err != nil {
		return nil
	}

	userId, _ := ctx.Locals("user_id").(string)
	if session.TeacherId != userId {
		return fiber.NewError(fiber.StatusForbidden, "only the session teacher may perform this action")
	}

	return nil
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Create)
	h.Get("teacher/:teacherId", c.ListByTeacher)
	h.Get(":id", c.Show)
	h.Put(":id/advance", c.AdvanceSlide)
	h.Put(":id/unlock", c.UnlockSlide)
	h.Put(":id/lock", c.SetLock)
	h.Put(":id/pause", c.Pause)
	h.Put(":id/resume", c.Resume)
	h.Put(":id/end", c.End)
	h.Post(":id/join", c.Join)
	h.Post(":id/leave", c.Leave)
	h.Put(":id/progress", c.UpdateProgress)
	h.Put(":id/notes", c.SetTeacherNote)
	h.Post(":id/chat", c.PostChatMessage)
	h.Post(":id/hand/raise", c.RaiseHand)
	h.Post(":id/hand/lower", c.LowerHand)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.Create(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create session", res))
}

// Show evaluates staleness lazily before returning state, so a session
// nobody has touched since its policy window expired is reaped on read.
func (c *sessionController) Show(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	if _, err := c.reaperService.CheckAndReap(ctx.Context(), id); err != nil {
		return err
	}

	res, err := c.sessionService.Get(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

// ListByTeacher sweeps the teacher's active sessions through the reaper
// before listing, so stale sessions never reach the dashboard.
func (c *sessionController) ListByTeacher(ctx *fiber.Ctx) error {
	teacherId := ctx.Params("teacherId")

	reaped, err := c.reaperService.CleanupAll(ctx.Context(), teacherId)
	if err != nil {
		return err
	}

	sessions, err := c.repo.FindActiveByTeacher(ctx.Context(), teacherId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", dto.SessionListResponse{
		Sessions: sessions,
		Reaped:   reaped,
	}))
}

func (c *sessionController) AdvanceSlide(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.AdvanceSlideRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.AdvanceSlide(ctx.Context(), id, req.Slide); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success advance slide", nil))
}

func (c *sessionController) UnlockSlide(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.UnlockSlideRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.UnlockSlide(ctx.Context(), id, req.Slide); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success unlock slide", nil))
}

func (c *sessionController) SetLock(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.SetLockRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.SetLock(ctx.Context(), id, req.Locked); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success set lock", nil))
}

func (c *sessionController) Pause(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.Pause(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success pause session", nil))
}

func (c *sessionController) Resume(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.Resume(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success resume session", nil))
}

func (c *sessionController) End(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	res, err := c.sessionService.End(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success end session", res))
}

func (c *sessionController) Join(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.JoinSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.membershipService.Join(ctx.Context(), id, req.StudentId, req.StudentName); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success join session", nil))
}

func (c *sessionController) Leave(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.LeaveSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.membershipService.Leave(ctx.Context(), id, req.StudentId, req.StudentName); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success leave session", nil))
}

func (c *sessionController) UpdateProgress(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.UpdateProgressRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.membershipService.UpdateProgress(ctx.Context(), id, &req); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update progress", nil))
}

func (c *sessionController) SetTeacherNote(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.TeacherNoteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.requireOwner(ctx, id); err != nil {
		return err
	}

	if err := c.sessionService.SetTeacherNote(ctx.Context(), id, req.Slide, req.Note); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success set note", nil))
}

func (c *sessionController) PostChatMessage(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.ChatMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.PostChatMessage(ctx.Context(), id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success post message", res))
}

func (c *sessionController) RaiseHand(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.RaiseHandRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.sessionService.RaiseHand(ctx.Context(), id, req.StudentId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success raise hand", nil))
}

func (c *sessionController) LowerHand(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.RaiseHandRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.sessionService.LowerHand(ctx.Context(), id, req.StudentId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success lower hand", nil))
}
