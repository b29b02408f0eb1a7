package guarantee

import (
	"net/http"

	"guarantee-controlplane/pkg/db/pagination"
	"guarantee-controlplane/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *httpapi.Router, h *Handler) {
	templates := r.Admin.Group("/guarantee-templates")
	templates.GET("", h.listTemplates)
	templates.POST("", h.createTemplate)
	templates.GET("/:id", h.getTemplate)
	templates.PUT("/:id", h.updateTemplate)
	templates.DELETE("/:id", h.deleteTemplate)

	guarantees := r.Admin.Group("/guarantees")
	guarantees.GET("", h.listInstances)
	guarantees.POST("", h.issueInstance)
	guarantees.GET("/:instanceId", h.getInstance)
	guarantees.POST("/:instanceId/evaluate", h.evaluate)
	guarantees.PUT("/:instanceId/milestones/:conditionId", h.verifyMilestone)

	r.Engine.POST("/api/guarantees/:instanceId/choose-payout", h.choosePayout)
}

// GET /api/admin/guarantee-templates?active=false
func (h *Handler) listTemplates(c *gin.Context) {
	templates, err := h.svc.ListTemplates(c.Request.Context(), c.Query("active") == "false")
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *Handler) createTemplate(c *gin.Context) {
	var in TemplateInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	tpl, err := h.svc.CreateTemplate(c.Request.Context(), httpapi.Actor(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *Handler) getTemplate(c *gin.Context) {
	tpl, err := h.svc.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) updateTemplate(c *gin.Context) {
	var in TemplateInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	tpl, err := h.svc.UpdateTemplate(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) deleteTemplate(c *gin.Context) {
	tpl, err := h.svc.DeactivateTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": tpl})
}

// GET /api/admin/guarantees?status=&limit=&offset=
func (h *Handler) listInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := httpapi.BindQuery(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}

	instances, total, err := h.svc.ListInstances(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      instances,
		"total":     total,
		"page_info": pagination.BuildPageInfo(req.Normalize(), len(instances), total),
	})
}

func (h *Handler) issueInstance(c *gin.Context) {
	var req IssueInstanceRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	inst, err := h.svc.IssueInstance(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": inst})
}

func (h *Handler) getInstance(c *gin.Context) {
	inst, err := h.svc.GetInstance(c.Request.Context(), c.Param("instanceId"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inst})
}

func (h *Handler) evaluate(c *gin.Context) {
	result, err := h.svc.Evaluate(c.Request.Context(), c.Param("instanceId"), httpapi.Actor(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PUT /api/admin/guarantees/:instanceId/milestones/:conditionId
func (h *Handler) verifyMilestone(c *gin.Context) {
	var req VerifyMilestoneRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}
	req.InstanceID = c.Param("instanceId")
	req.ConditionID = c.Param("conditionId")
	req.VerifiedBy = httpapi.Actor(c)

	result, err := h.svc.VerifyMilestone(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/guarantees/:instanceId/choose-payout
func (h *Handler) choosePayout(c *gin.Context) {
	var req ChoosePayoutRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}
	req.InstanceID = c.Param("instanceId")

	result, err := h.svc.ChoosePayout(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
