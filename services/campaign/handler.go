package campaign

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
	campaigns := r.Admin.Group("/campaigns")
	campaigns.GET("", h.listCampaigns)
	campaigns.POST("", h.createCampaign)
	campaigns.GET("/:id", h.getCampaign)
	campaigns.PUT("/:id", h.updateCampaign)
	campaigns.DELETE("/:id", h.deleteCampaign)

	campaigns.GET("/:id/eligible-bundles", h.listBundles)
	campaigns.POST("/:id/eligible-bundles", h.addBundle)
	campaigns.DELETE("/:id/eligible-bundles", h.removeBundle)

	campaigns.GET("/:id/criteria", h.listCriteria)
	campaigns.POST("/:id/criteria", h.createCriterion)
	campaigns.PUT("/:id/criteria", h.updateCriterion)
	campaigns.DELETE("/:id/criteria", h.deleteCriterion)

	enrollments := campaigns.Group("/:id/enrollments")
	enrollments.GET("", h.listEnrollments)
	enrollments.POST("", h.enroll)
	enrollments.GET("/:enrollmentId", h.getEnrollment)
	enrollments.POST("/:enrollmentId/resolve", h.resolve)
	enrollments.PUT("/:enrollmentId/progress/:criterionId", h.verifyProgress)

	r.Webhooks.POST("/campaign-progress", h.ingestProgress)
}

// GET /api/admin/campaigns?status=&limit=&offset=
func (h *Handler) listCampaigns(c *gin.Context) {
	var req ListCampaignsRequest
	if err := httpapi.BindQuery(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}

	campaigns, total, err := h.svc.ListCampaigns(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      campaigns,
		"total":     total,
		"page_info": pagination.BuildPageInfo(req.Normalize(), len(campaigns), total),
	})
}

func (h *Handler) createCampaign(c *gin.Context) {
	var in CampaignInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	campaign, err := h.svc.CreateCampaign(c.Request.Context(), httpapi.Actor(c), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": campaign})
}

func (h *Handler) getCampaign(c *gin.Context) {
	campaign, err := h.svc.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

func (h *Handler) updateCampaign(c *gin.Context) {
	var in CampaignInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	campaign, err := h.svc.UpdateCampaign(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

func (h *Handler) deleteCampaign(c *gin.Context) {
	if err := h.svc.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listBundles(c *gin.Context) {
	bundles, err := h.svc.ListBundles(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bundles})
}

func (h *Handler) addBundle(c *gin.Context) {
	var req AddBundleRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	bundle, err := h.svc.AddBundle(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": bundle})
}

// DELETE /api/admin/campaigns/:id/eligible-bundles?bundle_id=
func (h *Handler) removeBundle(c *gin.Context) {
	if err := h.svc.RemoveBundle(c.Request.Context(), c.Param("id"), c.Query("bundle_id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listCriteria(c *gin.Context) {
	criteria, err := h.svc.ListCriteria(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": criteria})
}

func (h *Handler) createCriterion(c *gin.Context) {
	var in CriterionInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	criterion, err := h.svc.CreateCriterion(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": criterion})
}

func (h *Handler) updateCriterion(c *gin.Context) {
	var in CriterionInput
	if err := httpapi.BindJSON(c, &in, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	criterion, err := h.svc.UpdateCriterion(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": criterion})
}

// DELETE /api/admin/campaigns/:id/criteria?criterion_id=
func (h *Handler) deleteCriterion(c *gin.Context) {
	if err := h.svc.DeleteCriterion(c.Request.Context(), c.Param("id"), c.Query("criterion_id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/admin/campaigns/:id/enrollments?status=&limit=&offset=
func (h *Handler) listEnrollments(c *gin.Context) {
	var req ListEnrollmentsRequest
	if err := httpapi.BindQuery(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}

	enrollments, total, err := h.svc.ListEnrollments(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      enrollments,
		"total":     total,
		"page_info": pagination.BuildPageInfo(req.Normalize(), len(enrollments), total),
	})
}

func (h *Handler) enroll(c *gin.Context) {
	var req EnrollRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	enrollment, err := h.svc.Enroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": enrollment})
}

func (h *Handler) getEnrollment(c *gin.Context) {
	enrollment, err := h.svc.GetEnrollment(c.Request.Context(), c.Param("id"), c.Param("enrollmentId"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": enrollment})
}

// POST /api/admin/campaigns/:id/enrollments/:enrollmentId/resolve
// The body is optional.
func (h *Handler) resolve(c *gin.Context) {
	var req ResolveRequest
	if err := httpapi.BindJSON(c, &req, true); err != nil {
		httpapi.Fail(c, err)
		return
	}
	req.CampaignID = c.Param("id")
	req.EnrollmentID = c.Param("enrollmentId")

	result, err := h.svc.ResolveEnrollment(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) verifyProgress(c *gin.Context) {
	var req VerifyProgressRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}
	req.CampaignID = c.Param("id")
	req.EnrollmentID = c.Param("enrollmentId")
	req.CriterionID = c.Param("criterionId")
	req.VerifiedBy = httpapi.Actor(c)

	result, err := h.svc.VerifyProgress(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/webhooks/n8n/campaign-progress
func (h *Handler) ingestProgress(c *gin.Context) {
	var req IngestProgressRequest
	if err := httpapi.BindJSON(c, &req, false); err != nil {
		httpapi.Fail(c, err)
		return
	}

	result, err := h.svc.IngestProgress(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
