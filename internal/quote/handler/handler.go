package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-quote/internal/middleware"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	RFQ       *RFQHandler
	Pipeline  *PipelineHandler
	Lifecycle *LifecycleHandler
	Document  *DocumentHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		RFQ:       NewRFQHandler(svc.RFQ, svc.Versioning, svc.Export),
		Pipeline:  NewPipelineHandler(svc.Pipeline),
		Lifecycle: NewLifecycleHandler(svc.Lifecycle),
		Document:  NewDocumentHandler(svc.Document),
	}
}

// RegisterRoutes 注册 /api/v1 下的路由，api 组需已挂载 JWTAuth
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	rfqs := api.Group("/rfqs")
	{
		rfqs.POST("", h.RFQ.Create)
		rfqs.GET("", h.RFQ.List)
		rfqs.GET("/states", h.RFQ.States)
		rfqs.GET("/:id", h.RFQ.Get)
		rfqs.GET("/:id/skus", h.RFQ.ListSKUs)
		rfqs.GET("/:id/job-costs", h.RFQ.ListJobCosts)
		rfqs.GET("/:id/export", h.RFQ.Export)
		rfqs.GET("/:id/revisions", h.RFQ.ListRevisions)
		rfqs.POST("/:id/revisions", h.RFQ.CreateRevision)

		rfqs.POST("/:id/factory-total", h.Pipeline.FactoryTotal)
		rfqs.POST("/:id/auto-calculate", h.Pipeline.AutoCalculate)

		rfqs.POST("/:id/assign", h.Lifecycle.Assign)
		rfqs.POST("/:id/approval", h.Lifecycle.Approval)
		rfqs.POST("/:id/reject-with-state", h.Lifecycle.RejectWithState)
		rfqs.POST("/:id/resubmit", h.Lifecycle.Resubmit)
		rfqs.POST("/:id/send-to-plant", h.Lifecycle.SendToPlant)
		rfqs.POST("/:id/comments", h.Lifecycle.AddComment)
		rfqs.PUT("/:id/state", middleware.RequireRole(entity.RoleAdmin), h.Lifecycle.UpdateState)
		rfqs.GET("/:id/history", h.Lifecycle.History)
		rfqs.GET("/:id/plants", h.Lifecycle.ListPlants)
		rfqs.GET("/:id/transitions", h.Lifecycle.Transitions)

		rfqs.POST("/:id/documents", h.Document.Upload)
		rfqs.GET("/:id/documents", h.Document.List)
	}

	api.GET("/revisions/:id/parent", h.RFQ.ParentVersion)

	skus := api.Group("/skus")
	{
		skus.GET("/:id", h.RFQ.GetSKU)
		skus.GET("/:id/products", h.RFQ.ListProducts)
		skus.POST("/:id/products", h.RFQ.AddProducts)
		skus.GET("/:id/other-costs", h.RFQ.ListOtherCosts)
		skus.DELETE("/:id/job-costs/:jobTypeId", h.RFQ.DeleteJobCost)

		skus.POST("/:id/assembly", h.Pipeline.ComputeAssembly)
		skus.GET("/:id/subtotal", h.Pipeline.Subtotal)
		skus.PUT("/:id/overhead", h.Pipeline.SetOverhead)
		skus.PUT("/:id/freight-insurance", h.Pipeline.SetFreightInsurance)
		skus.POST("/:id/cif", h.Pipeline.ComputeCIF)
		skus.PUT("/:id/margin", h.Pipeline.SetMargin)
		skus.PUT("/:id/currency", h.Pipeline.SetClientCurrency)
	}

	products := api.Group("/products")
	{
		products.PUT("/:id/yield", h.Pipeline.UpdateYield)
		products.PUT("/:id/bom-cost", h.Pipeline.UpdateBOMCost)
		products.DELETE("/:id", h.RFQ.DeleteProduct)
	}

	api.POST("/job-costs", h.Pipeline.SaveJobCosts)
	api.POST("/other-costs", h.Pipeline.SaveOtherCost)

	docs := api.Group("/documents")
	{
		docs.GET("/:id/download", h.Document.Download)
		docs.DELETE("/:id", h.Document.Delete)
		docs.DELETE("/:id/permanent", middleware.RequireRole(entity.RoleAdmin), h.Document.DeletePermanently)
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Success: true, Message: "success", Data: data})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Success: true, Message: "success", Data: data})
}

// Error 错误响应，code 为 HTTP 状态码 * 100
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status * 100, Message: message})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 400, message)
}

// Fail 按错误类别输出响应，内部错误记录到 gin 上下文供访问日志输出
func Fail(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	if status == 200 {
		status = 500
	}
	if status >= 500 {
		c.Error(err)
	}
	Error(c, status, errs.PublicMessage(err))
}

// StageResponse 计算环节结果：业务拒绝仍以对应的4xx返回，附带环节信息
func StageResponse(c *gin.Context, res *service.StageResult, err error) {
	if err != nil {
		Fail(c, err)
		return
	}
	if !res.Success {
		status := errs.HTTPStatus(res.Kind)
		c.JSON(status, Response{Code: status * 100, Message: res.Message, Data: res})
		return
	}
	c.JSON(200, Response{Code: 0, Success: true, Message: res.Message, Data: res})
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserID)
}

// GetActor 从上下文获取当前操作人
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: c.GetString(middleware.CtxUserID),
		RoleID: c.GetString(middleware.CtxRoleID),
	}
}

// GetSelector 读取 ledger 查询参数（current / latest）
func GetSelector(c *gin.Context) (service.Selector, bool) {
	sel, err := service.ParseSelector(c.Query("ledger"))
	if err != nil {
		Fail(c, err)
		return "", false
	}
	return sel, true
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
