package handler

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PipelineHandler 成本计算各环节
type PipelineHandler struct {
	svc *service.PipelineService
}

func NewPipelineHandler(svc *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

type percentageReq struct {
	Percentage *decimal.Decimal `json:"percentage" binding:"required"`
}

type currencyReq struct {
	CurrencyID string `json:"currency_id" binding:"required"`
}

// UpdateYield PUT /products/:id/yield
func (h *PipelineHandler) UpdateYield(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req service.YieldInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.ProductID = c.Param("id")
	res, err := h.svc.UpdateYield(c.Request.Context(), sel, req)
	StageResponse(c, res, err)
}

// UpdateBOMCost PUT /products/:id/bom-cost
func (h *PipelineHandler) UpdateBOMCost(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req service.BOMCostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.ProductID = c.Param("id")
	res, err := h.svc.UpdateBOMCost(c.Request.Context(), sel, req)
	StageResponse(c, res, err)
}

// ComputeAssembly POST /skus/:id/assembly
func (h *PipelineHandler) ComputeAssembly(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	res, err := h.svc.ComputeAssembly(c.Request.Context(), sel, c.Param("id"))
	StageResponse(c, res, err)
}

// SaveJobCosts POST /job-costs
func (h *PipelineHandler) SaveJobCosts(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req service.JobCostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.SaveJobCosts(c.Request.Context(), sel, req)
	StageResponse(c, res, err)
}

// SaveOtherCost POST /other-costs
func (h *PipelineHandler) SaveOtherCost(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req service.OtherCostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.SaveOtherCost(c.Request.Context(), sel, req)
	StageResponse(c, res, err)
}

// Subtotal GET /skus/:id/subtotal
func (h *PipelineHandler) Subtotal(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	res, err := h.svc.Subtotal(c.Request.Context(), sel, c.Param("id"))
	StageResponse(c, res, err)
}

// SetOverhead PUT /skus/:id/overhead
func (h *PipelineHandler) SetOverhead(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req percentageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.SetOverhead(c.Request.Context(), sel, c.Param("id"), *req.Percentage)
	StageResponse(c, res, err)
}

// SetFreightInsurance PUT /skus/:id/freight-insurance
func (h *PipelineHandler) SetFreightInsurance(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req service.FreightInsuranceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.SKUID = c.Param("id")
	res, err := h.svc.SetFreightInsurance(c.Request.Context(), sel, req)
	StageResponse(c, res, err)
}

// ComputeCIF POST /skus/:id/cif
func (h *PipelineHandler) ComputeCIF(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	res, err := h.svc.ComputeCIF(c.Request.Context(), sel, c.Param("id"))
	StageResponse(c, res, err)
}

// SetMargin PUT /skus/:id/margin
func (h *PipelineHandler) SetMargin(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req percentageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.SetMargin(c.Request.Context(), sel, c.Param("id"), *req.Percentage)
	StageResponse(c, res, err)
}

// SetClientCurrency PUT /skus/:id/currency
func (h *PipelineHandler) SetClientCurrency(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	var req currencyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.SetClientCurrency(c.Request.Context(), sel, c.Param("id"), req.CurrencyID)
	StageResponse(c, res, err)
}

// FactoryTotal POST /rfqs/:id/factory-total
func (h *PipelineHandler) FactoryTotal(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	res, err := h.svc.FactoryTotal(c.Request.Context(), sel, c.Param("id"))
	StageResponse(c, res, err)
}

// AutoCalculate POST /rfqs/:id/auto-calculate
func (h *PipelineHandler) AutoCalculate(c *gin.Context) {
	sel, ok := GetSelector(c)
	if !ok {
		return
	}
	res, err := h.svc.AutoCalculate(c.Request.Context(), sel, c.Param("id"))
	StageResponse(c, res, err)
}
