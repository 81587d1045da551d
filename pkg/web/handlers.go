package web

import (
	"strconv"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderSubDeptID = "X-Sd-ID"
	HeaderCompanyID = "X-Company-ID"

	actorLocalKey = "actor"
)

type APIHandlers struct {
	engine    *services.Engine
	validator *validator.Validate
}

func NewAPIHandlers(engine *services.Engine, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
	}
}

// Authenticate reads the caller forwarded by the gateway. Authentication
// itself happens upstream.
func (h *APIHandlers) Authenticate(c fiber.Ctx) error {
	userID := c.Get(HeaderUserID)
	if userID == "" {
		return unauthorized(c, HeaderUserID+" header is required")
	}

	role := protocol.Role(c.Get(HeaderUserRole))
	switch role {
	case protocol.RoleAdmin, protocol.RoleSuperAdmin, protocol.RoleManager, protocol.RoleSalesPerson:
	case "":
		role = protocol.RoleSalesPerson
	default:
		return unauthorized(c, "unknown role "+string(role))
	}

	c.Locals(actorLocalKey, protocol.Actor{
		UserID:          userID,
		Role:            role,
		SubDepartmentID: c.Get(HeaderSubDeptID),
		CompanyID:       c.Get(HeaderCompanyID),
	})

	return c.Next()
}

func actorOf(c fiber.Ctx) protocol.Actor {
	actor, _ := c.Locals(actorLocalKey).(protocol.Actor)

	return actor
}

// bind decodes an optional JSON body into req and validates it.
func (h *APIHandlers) bind(c fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(req); err != nil {
			return err
		}
	}

	return h.validator.Struct(req)
}

func accepted(c fiber.Ctx, cadenceID, message string) error {
	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{Message: message, CadenceID: cadenceID})
}

func (h *APIHandlers) ListCadences(c fiber.Ctx) error {
	filter := persistence.CadenceFilter{
		UserID:          c.Query("user_id"),
		SubDepartmentID: c.Query("sd_id"),
		CompanyID:       c.Query("company_id"),
		Status:          models.CadenceStatus(c.Query("status")),
	}

	cadences, err := h.engine.Cadences.List(c.Context(), actorOf(c), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"cadences":    cadences,
		"total_count": len(cadences),
	})
}

func (h *APIHandlers) CreateCadence(c fiber.Ctx) error {
	var req services.CreateCadenceRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cadence, err := h.engine.Cadences.Create(c.Context(), actorOf(c), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(cadence)
}

func (h *APIHandlers) GetCadence(c fiber.Ctx) error {
	cadence, err := h.engine.Cadences.Get(c.Context(), actorOf(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cadence)
}

func (h *APIHandlers) UpdateCadence(c fiber.Ctx) error {
	var req services.UpdateCadenceRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	cadence, err := h.engine.Cadences.Update(c.Context(), actorOf(c), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cadence)
}

func (h *APIHandlers) DeleteCadence(c fiber.Ctx) error {
	if err := h.engine.Cadences.Delete(c.Context(), actorOf(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) LaunchCadence(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Cadences.Launch(c.Context(), actorOf(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return accepted(c, id, "Cadence launch started")
}

func (h *APIHandlers) ResumeCadence(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.engine.Cadences.Resume(c.Context(), actorOf(c), id); err != nil {
		return handleServiceError(c, err)
	}

	return accepted(c, id, "Cadence resume started")
}

func (h *APIHandlers) PauseCadence(c fiber.Ctx) error {
	var req PauseCadenceRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	id := c.Params("id")

	if err := h.engine.Cadences.PauseForDuration(c.Context(), actorOf(c), id, req.PauseFor); err != nil {
		return handleServiceError(c, err)
	}

	return accepted(c, id, "Cadence pause started")
}

func (h *APIHandlers) StopCadence(c fiber.Ctx) error {
	var req StopCadenceRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	id := c.Params("id")

	if err := h.engine.Cadences.Stop(c.Context(), actorOf(c), id, req.Reason); err != nil {
		return handleServiceError(c, err)
	}

	cadence, err := h.engine.Cadences.Get(c.Context(), actorOf(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cadence)
}

func (h *APIHandlers) EnrollLeads(c fiber.Ctx) error {
	var req EnrollRequest

	if err := h.bind(c, &req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.engine.Cadences.Enroll(c.Context(), actorOf(c), c.Params("id"), req.LeadIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CadenceStatistics(c fiber.Ctx) error {
	stats, err := h.engine.Cadences.Statistics(c.Context(), actorOf(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) ListNodes(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.engine.Cadences.Get(c.Context(), actorOf(c), id); err != nil {
		return handleServiceError(c, err)
	}

	nodes, err := h.engine.Nodes.Sequence(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"nodes": nodes})
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	var req services.CreateNodeRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	node, err := h.engine.Nodes.InsertAfter(c.Context(), actorOf(c), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

// readableNode loads a node and checks the actor can read its cadence.
func (h *APIHandlers) readableNode(c fiber.Ctx) (*models.Node, error) {
	node, err := h.engine.Nodes.Get(c.Context(), c.Params("nodeId"))
	if err != nil {
		return nil, err
	}

	if _, err := h.engine.Cadences.Get(c.Context(), actorOf(c), node.CadenceID); err != nil {
		return nil, err
	}

	return node, nil
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	node, err := h.readableNode(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req services.UpdateNodeRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	node, err := h.engine.Nodes.Update(c.Context(), actorOf(c), c.Params("nodeId"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteNode(c fiber.Ctx) error {
	if err := h.engine.Nodes.Delete(c.Context(), actorOf(c), c.Params("nodeId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// MailNodesBefore lists the mail nodes a reply node placed here could answer.
func (h *APIHandlers) MailNodesBefore(c fiber.Ctx) error {
	node, err := h.readableNode(c)
	if err != nil {
		return handleServiceError(c, err)
	}

	nodes, err := h.engine.Nodes.MailNodesBefore(c.Context(), node.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"nodes": nodes})
}

func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"node_types": h.engine.Registry.All()})
}

func parseBoolQuery(c fiber.Ctx, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}

	return strconv.ParseBool(raw)
}
