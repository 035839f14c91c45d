package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
	"github.com/shopops/automator/internal/infrastructure/approval"
	"github.com/shopops/automator/internal/interfaces/http/dto"
)

const defaultExecutionsLimit = 20

// AutomationHandler exposes the plan lifecycle: build, dry-run, approve,
// apply, rollback and the read side of all of it
type AutomationHandler struct {
	BaseHandler
	engine *engine.Service
	grants *approval.GrantService
}

// NewAutomationHandler creates a new AutomationHandler. A nil grant service
// disables token-based approvals; the approved_by form keeps working.
func NewAutomationHandler(eng *engine.Service, grants *approval.GrantService) *AutomationHandler {
	return &AutomationHandler{engine: eng, grants: grants}
}

// RegisterRoutes registers automation routes on the API group
func (h *AutomationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.GET("", h.ListAgents)
		agents.POST("/:type/execute", h.Execute)
		agents.GET("/:type/executions", h.ListExecutions)
	}

	plans := rg.Group("/plans")
	{
		plans.POST("", h.CreatePlan)
		plans.GET("/:id", h.GetPlan)
		plans.GET("/:id/result", h.GetResult)
		plans.GET("/:id/rollback", h.GetRollbackOutcome)
		plans.POST("/:id/dry-run", h.DryRun)
		plans.POST("/:id/approve", h.Approve)
		plans.POST("/:id/apply", h.Apply)
		plans.POST("/:id/rollback", h.Rollback)
		plans.POST("/:id/cancel", h.Cancel)
	}
}

// ListAgents returns the registered agent types
func (h *AutomationHandler) ListAgents(c *gin.Context) {
	h.Success(c, gin.H{"agents": h.engine.Agents()})
}

// Execute builds a plan from the request parameters and runs it in one
// call. Plans that need approval are parked and answered with 202.
func (h *AutomationHandler) Execute(c *gin.Context) {
	var req dto.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, err := h.engine.Execute(c.Request.Context(), engine.ExecuteRequest{
		AgentType:  agent.Type(c.Param("type")),
		Parameters: req.Parameters,
		DependsOn:  req.DependsOn,
		DryRun:     req.DryRun,
	})
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.respondResult(c, res)
}

// ListExecutions returns the recent run history for one agent type
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	var query dto.ExecutionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultExecutionsLimit
	}

	executions, err := h.engine.RecentExecutions(c.Request.Context(), c.Param("type"), query.Limit)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Success(c, gin.H{"executions": executions})
}

// CreatePlan validates parameters and registers a plan without running it
func (h *AutomationHandler) CreatePlan(c *gin.Context) {
	var req dto.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	p, err := h.engine.Plan(c.Request.Context(), engine.BuildRequest{
		AgentType:  agent.Type(req.Agent),
		Parameters: req.Parameters,
		DependsOn:  req.DependsOn,
	})
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Created(c, p)
}

// GetPlan returns a plan by ID. Finished plans from earlier runs of the
// server are served out of the audit trail.
func (h *AutomationHandler) GetPlan(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	p, err := h.engine.LookupPlan(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Success(c, p)
}

// GetResult returns the newest recorded run for a plan
func (h *AutomationHandler) GetResult(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	res, err := h.engine.LookupResult(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Success(c, res)
}

// GetRollbackOutcome returns the rollback record for a plan
func (h *AutomationHandler) GetRollbackOutcome(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	out, err := h.engine.LookupRollback(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Success(c, out)
}

// DryRun simulates a plan without touching any provider
func (h *AutomationHandler) DryRun(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	res, err := h.engine.DryRun(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.respondResult(c, res)
}

// Approve records a human decision on a parked plan. The decision arrives
// either as an approver name or as a signed grant token issued for exactly
// this plan.
func (h *AutomationHandler) Approve(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	record, ok := h.buildApproval(c, planID, &req)
	if !ok {
		return
	}
	if err := h.engine.Approve(c.Request.Context(), planID, record); err != nil {
		h.HandleEngineError(c, err)
		return
	}

	p, err := h.engine.Get(planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Success(c, p)
}

// buildApproval turns the request body into an approval record, redeeming
// the grant when one is presented
func (h *AutomationHandler) buildApproval(c *gin.Context, planID uuid.UUID, req *dto.ApproveRequest) (*plan.Approval, bool) {
	if req.Grant != "" {
		if h.grants == nil {
			h.BadRequest(c, "approval grants are not enabled")
			return nil, false
		}
		record, err := h.grants.Redeem(req.Grant, planID)
		if err != nil {
			h.BadRequest(c, err.Error())
			return nil, false
		}
		return record, true
	}
	if req.ApprovedBy == "" {
		h.BadRequest(c, "approved_by or grant is required")
		return nil, false
	}
	return &plan.Approval{
		ApprovedBy: req.ApprovedBy,
		Note:       req.Note,
		ExpiresAt:  req.ExpiresAt,
	}, true
}

// Apply runs an approved plan for real
func (h *AutomationHandler) Apply(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	res, err := h.engine.Apply(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.respondResult(c, res)
}

// Rollback compensates a finished plan using its recorded mutations
func (h *AutomationHandler) Rollback(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	out, err := h.engine.Rollback(c.Request.Context(), planID)
	if err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.respondRollback(c, out)
}

// Cancel requests cooperative cancellation of a running plan. The in-flight
// item finishes first, so the effect is asynchronous.
func (h *AutomationHandler) Cancel(c *gin.Context) {
	planID, ok := h.bindPlanID(c)
	if !ok {
		return
	}
	if err := h.engine.Cancel(planID); err != nil {
		h.HandleEngineError(c, err)
		return
	}
	h.Accepted(c, gin.H{"plan_id": planID, "cancelling": true})
}

// bindPlanID parses the :id path parameter
func (h *AutomationHandler) bindPlanID(c *gin.Context) (uuid.UUID, bool) {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid plan id")
		return uuid.Nil, false
	}
	return planID, true
}

// respondResult maps a run's overall status onto the HTTP status. Partial
// runs answer 207 so callers see at a glance that item outcomes are mixed;
// failed runs answer 500 but still carry the full result.
func (h *AutomationHandler) respondResult(c *gin.Context, res *work.ExecutionResult) {
	switch res.Status {
	case work.StatusSuccess:
		h.Success(c, res)
	case work.StatusPartial:
		c.JSON(http.StatusMultiStatus, dto.NewSuccessResponse(res))
	default:
		c.JSON(http.StatusInternalServerError, dto.NewFailureResponse(res,
			dto.ErrCodeExecutionFailed,
			fmt.Sprintf("run for plan %s finished with status %s", res.PlanID, res.Status),
			getRequestID(c)))
	}
}

// respondRollback maps a rollback outcome onto the HTTP status
func (h *AutomationHandler) respondRollback(c *gin.Context, out *plan.RollbackOutcome) {
	if out.Status == plan.StatusRollbackFailed {
		c.JSON(http.StatusInternalServerError, dto.NewFailureResponse(out,
			dto.ErrCodeRollbackFailed,
			fmt.Sprintf("rollback for plan %s did not complete", out.PlanID),
			getRequestID(c)))
		return
	}
	h.Success(c, out)
}
