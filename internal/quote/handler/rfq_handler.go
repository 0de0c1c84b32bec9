package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// RFQHandler 询价单、SKU、物料、版本与导出
type RFQHandler struct {
	svc        *service.RFQService
	versioning *service.VersioningService
	export     *service.ExportService
}

func NewRFQHandler(svc *service.RFQService, versioning *service.VersioningService, export *service.ExportService) *RFQHandler {
	return &RFQHandler{svc: svc, versioning: versioning, export: export}
}

// Create POST /rfqs
func (h *RFQHandler) Create(c *gin.Context) {
	var req service.CreateRFQInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.CreatedBy = GetUserID(c)
	rfq, err := h.svc.CreateRFQ(c.Request.Context(), req)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, rfq)
}

// List GET /rfqs
func (h *RFQHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	latestOnly, _ := strconv.ParseBool(c.Query("latest_only"))
	result, err := h.svc.ListRFQs(c.Request.Context(), repository.RFQFilter{
		ClientID:   c.Query("client_id"),
		CreatedBy:  c.Query("created_by"),
		State:      c.Query("state"),
		LatestOnly: latestOnly,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

func (h *RFQHandler) States(c *gin.Context) {
	Success(c, gin.H{"items": h.svc.ListStates()})
}

// Get GET /rfqs/:id
func (h *RFQHandler) Get(c *gin.Context) {
	rfq, err := h.svc.GetRFQ(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rfq)
}

// ListSKUs GET /rfqs/:id/skus?ledger=latest
func (h *RFQHandler) ListSKUs(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	skus, err := h.svc.ListSKUs(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": skus})
}

func (h *RFQHandler) GetSKU(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	sku, err := h.svc.GetSKU(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, sku)
}

// ========== 物料 ==========

type addProductsReq struct {
	Products []service.ProductInput `json:"products"`
}

// AddProducts POST /skus/:id/products
func (h *RFQHandler) AddProducts(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req addProductsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	products, err := h.svc.AddProducts(c.Request.Context(), c.Param("id"), sel, req.Products)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, gin.H{"items": products})
}

func (h *RFQHandler) ListProducts(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	products, err := h.svc.ListProducts(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": products})
}

// DeleteProduct DELETE /products/:id
func (h *RFQHandler) DeleteProduct(c *gin.Context) {
	if err := h.svc.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// ========== 成本明细 ==========

// ListJobCosts GET /rfqs/:id/job-costs?sku_id=
func (h *RFQHandler) ListJobCosts(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	items, err := h.svc.ListJobCosts(c.Request.Context(), c.Param("id"), c.Query("sku_id"), sel)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// DeleteJobCost DELETE /skus/:id/job-costs/:jobTypeId
func (h *RFQHandler) DeleteJobCost(c *gin.Context) {
	if err := h.svc.DeleteJobCost(c.Request.Context(), c.Param("id"), c.Param("jobTypeId")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

func (h *RFQHandler) ListOtherCosts(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	items, err := h.svc.ListOtherCosts(c.Request.Context(), c.Param("id"), sel)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// ========== 版本 ==========

// CreateRevision POST /rfqs/:id/revisions
func (h *RFQHandler) CreateRevision(c *gin.Context) {
	result, err := h.versioning.CreateRevision(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, result)
}

func (h *RFQHandler) ListRevisions(c *gin.Context) {
	items, err := h.versioning.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// ParentVersion GET /revisions/:id/parent
func (h *RFQHandler) ParentVersion(c *gin.Context) {
	rootID, err := h.versioning.GetParentVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"root_id": rootID})
}

// ========== 导出 ==========

// Export GET /rfqs/:id/export
func (h *RFQHandler) Export(c *gin.Context) {
	f, filename, err := h.export.ExportRFQ(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		c.Error(err)
	}
}
