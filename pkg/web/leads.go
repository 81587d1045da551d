package web

import (
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	task, err := h.engine.Progression.Task(c.Context(), actorOf(c), c.Params("taskId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) CompleteTask(c fiber.Ctx) error {
	result, err := h.engine.Progression.Complete(c.Context(), actorOf(c), c.Params("taskId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ListUserTasks(c fiber.Ctx) error {
	todayOnly, err := parseBoolQuery(c, "today")
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	tasks, err := h.engine.Progression.Tasks(c.Context(), actorOf(c), c.Params("userId"), todayOnly)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (h *APIHandlers) CreateCustomTask(c fiber.Ctx) error {
	var req services.CustomTaskRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	task, err := h.engine.Progression.CreateCustomTask(c.Context(), actorOf(c), c.Params("leadId"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) SkipTask(c fiber.Ctx) error {
	var req SkipTaskRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.engine.Progression.Skip(c.Context(), actorOf(c), c.Params("leadId"), req.NodeID, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) PauseLead(c fiber.Ctx) error {
	var req PauseLeadRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.engine.Progression.PauseLeads(c.Context(), actorOf(c), c.Params("leadId"), req.CadenceIDs, req.PauseFor); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeLead(c fiber.Ctx) error {
	var req ResumeLeadRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.engine.Progression.ResumeLeads(c.Context(), actorOf(c), c.Params("leadId"), req.CadenceIDs); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StopLead(c fiber.Ctx) error {
	var req StopLeadRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err := h.engine.Progression.StopLeads(c.Context(), actorOf(c), c.Params("leadId"), req.CadenceIDs, req.Status, req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) Unsubscribe(c fiber.Ctx) error {
	var req UnsubscribeRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.engine.Progression.Unsubscribe(c.Context(), actorOf(c), c.Params("leadId"), c.Params("cadenceId"), req.NodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// ownUserOnly lets salespeople touch only their own queue and settings.
func ownUserOnly(c fiber.Ctx, userID string) bool {
	actor := actorOf(c)

	return actor.Role != protocol.RoleSalesPerson || actor.UserID == userID
}

func (h *APIHandlers) GetSettings(c fiber.Ctx) error {
	settings, err := h.engine.Settings.SettingsFor(c.Context(), actorOf(c), c.Params("userId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(settings)
}

func (h *APIHandlers) UpdateSettings(c fiber.Ctx) error {
	var settings models.Settings

	if err := c.Bind().JSON(&settings); err != nil {
		return badRequest(c, "Invalid request body")
	}

	settings.UserID = c.Params("userId")

	if err := h.engine.Settings.UpdateAs(c.Context(), actorOf(c), &settings); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(settings)
}

func (h *APIHandlers) UpdateSubDepartmentSettings(c fiber.Ctx) error {
	var patch services.SubDepartmentPatch

	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid request body")
	}

	users, err := h.engine.Settings.UpdateSubDepartment(c.Context(), actorOf(c), c.Params("sdId"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"users": users})
}

func (h *APIHandlers) RecalculateQueue(c fiber.Ctx) error {
	userID := c.Params("userId")
	if !ownUserOnly(c, userID) {
		return forbidden(c, "cannot recalculate the queue of another user")
	}

	selection, err := h.engine.Daily.Recalculate(c.Context(), userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(QueueResponse{
		UserID:      userID,
		High:        taskIDs(selection.High),
		Standard:    taskIDs(selection.Standard),
		Outstanding: selection.Outstanding,
	})
}

func taskIDs(tasks []*models.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}

	return ids
}
