package web

import (
	"github.com/gofiber/fiber/v3"
)

// Register mounts the cadence API under /v1 behind Authenticate.
func Register(router fiber.Router, h *APIHandlers) {
	api := router.Group("/v1", h.Authenticate)

	api.Get("/node-types", h.ListNodeTypes)

	cadences := api.Group("/cadences")
	cadences.Get("/", h.ListCadences)
	cadences.Post("/", h.CreateCadence)
	cadences.Get("/:id", h.GetCadence)
	cadences.Patch("/:id", h.UpdateCadence)
	cadences.Delete("/:id", h.DeleteCadence)
	cadences.Post("/:id/launch", h.LaunchCadence)
	cadences.Post("/:id/pause", h.PauseCadence)
	cadences.Post("/:id/resume", h.ResumeCadence)
	cadences.Post("/:id/stop", h.StopCadence)
	cadences.Post("/:id/leads", h.EnrollLeads)
	cadences.Get("/:id/statistics", h.CadenceStatistics)
	cadences.Get("/:id/nodes", h.ListNodes)
	cadences.Post("/:id/nodes", h.CreateNode)

	nodes := api.Group("/nodes")
	nodes.Get("/:nodeId", h.GetNode)
	nodes.Patch("/:nodeId", h.UpdateNode)
	nodes.Delete("/:nodeId", h.DeleteNode)
	nodes.Get("/:nodeId/mail-nodes-before", h.MailNodesBefore)

	tasks := api.Group("/tasks")
	tasks.Get("/:taskId", h.GetTask)
	tasks.Post("/:taskId/complete", h.CompleteTask)

	leads := api.Group("/leads")
	leads.Post("/:leadId/tasks", h.CreateCustomTask)
	leads.Post("/:leadId/skip", h.SkipTask)
	leads.Post("/:leadId/pause", h.PauseLead)
	leads.Post("/:leadId/resume", h.ResumeLead)
	leads.Post("/:leadId/stop", h.StopLead)
	leads.Post("/:leadId/cadences/:cadenceId/unsubscribe", h.Unsubscribe)

	users := api.Group("/users")
	users.Get("/:userId/tasks", h.ListUserTasks)
	users.Post("/:userId/recalculate", h.RecalculateQueue)
	users.Get("/:userId/settings", h.GetSettings)
	users.Put("/:userId/settings", h.UpdateSettings)

	api.Patch("/sub-departments/:sdId/settings", h.UpdateSubDepartmentSettings)
}
