package handler

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// LifecycleHandler 状态流转与审计轨迹
type LifecycleHandler struct {
	svc *service.LifecycleService
}

func NewLifecycleHandler(svc *service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{svc: svc}
}

type assignReq struct {
	ToUserID string `json:"to_user_id" binding:"required"`
	ToRoleID string `json:"to_role_id" binding:"required"`
	Comment  string `json:"comment"`
}

type approvalReq struct {
	TargetState string   `json:"target_state" binding:"required"`
	PlantIDs    []string `json:"plant_ids"`
	Comment     string   `json:"comment"`
}

type rejectWithStateReq struct {
	TargetStateID string `json:"target_state_id" binding:"required"`
	Comment       string `json:"comment"`
}

type commentReq struct {
	Comment string `json:"comment"`
}

type stateReq struct {
	State string `json:"state" binding:"required"`
}

// Assign POST /rfqs/:id/assign
func (h *LifecycleHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	entry, err := h.svc.Assign(c.Request.Context(), service.AssignInput{
		RFQID:    c.Param("id"),
		From:     GetActor(c),
		ToUserID: req.ToUserID,
		ToRoleID: req.ToRoleID,
		Comment:  req.Comment,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, entry)
}

// Approval POST /rfqs/:id/approval，target_state 为 approved 或 rejected
func (h *LifecycleHandler) Approval(c *gin.Context) {
	var req approvalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.ApproveOrReject(c.Request.Context(), service.ApprovalInput{
		RFQID:       c.Param("id"),
		Actor:       GetActor(c),
		TargetState: req.TargetState,
		PlantIDs:    req.PlantIDs,
		Comment:     req.Comment,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

// RejectWithState POST /rfqs/:id/reject-with-state
func (h *LifecycleHandler) RejectWithState(c *gin.Context) {
	var req rejectWithStateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	entry, err := h.svc.RejectWithState(c.Request.Context(), service.RejectWithStateInput{
		RFQID:         c.Param("id"),
		Actor:         GetActor(c),
		Comment:       req.Comment,
		TargetStateID: req.TargetStateID,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, entry)
}

func (h *LifecycleHandler) Resubmit(c *gin.Context) {
	var req commentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	entry, err := h.svc.Resubmit(c.Request.Context(), c.Param("id"), GetActor(c), req.Comment)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, entry)
}

func (h *LifecycleHandler) SendToPlant(c *gin.Context) {
	entry, err := h.svc.SendToPlant(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, entry)
}

// AddComment POST /rfqs/:id/comments
func (h *LifecycleHandler) AddComment(c *gin.Context) {
	var req commentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	entry, err := h.svc.AddComment(c.Request.Context(), c.Param("id"), GetActor(c), req.Comment)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, entry)
}

// UpdateState PUT /rfqs/:id/state，仅管理员
func (h *LifecycleHandler) UpdateState(c *gin.Context) {
	var req stateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	rfq, err := h.svc.UpdateState(c.Request.Context(), c.Param("id"), req.State, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rfq)
}

func (h *LifecycleHandler) History(c *gin.Context) {
	items, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

func (h *LifecycleHandler) ListPlants(c *gin.Context) {
	items, err := h.svc.ListPlantAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Transitions GET /rfqs/:id/transitions 当前用户角色可执行的迁移
func (h *LifecycleHandler) Transitions(c *gin.Context) {
	items, err := h.svc.AllowedTransitions(c.Request.Context(), c.Param("id"), GetActor(c).RoleID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}
