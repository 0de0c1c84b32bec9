package entity

import (
	"time"

	"gorm.io/datatypes"
)

// RFQ 生命周期状态
const (
	StateDraft         = "draft"
	StatePendingReview = "pending_review"
	StateAssigned      = "assigned"
	StateApproved      = "approved"
	StateRejected      = "rejected"
	StateSentToPlant   = "sent_to_plant"
	StateRevised       = "revised"
)

// 审计动作
const (
	ActionCreate   = "create"
	ActionAssign   = "assign"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionComment  = "comment"
	ActionResubmit = "resubmit"
	ActionSend     = "send_to_plant"
	ActionOverride = "override"
	ActionRevise   = "revise"
)

// Assignment 指派/评论审计记录，只追加不修改
type Assignment struct {
	ID         string         `json:"id" gorm:"primaryKey;size:32"`
	RFQID      string         `json:"rfq_id" gorm:"size:32;not null;index"`
	Action     string         `json:"action" gorm:"size:20;not null"`
	FromUserID string         `json:"from_user_id" gorm:"size:32"`
	FromRoleID string         `json:"from_role_id" gorm:"size:32"`
	ToUserID   *string        `json:"to_user_id" gorm:"size:32"`
	ToRoleID   *string        `json:"to_role_id" gorm:"size:32"`
	FromState  string         `json:"from_state" gorm:"size:20"`
	ToState    string         `json:"to_state" gorm:"size:20"`
	Comment    string         `json:"comment" gorm:"type:text"`
	Metadata   datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Assignment) TableName() string {
	return "rfq_assignments"
}

// PlantAssignment 审批后下发到工厂的记录，(rfq, plant) 唯一
type PlantAssignment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	RFQID      string    `json:"rfq_id" gorm:"size:32;not null;uniqueIndex:uq_plant_assignments_rfq_plant"`
	PlantID    string    `json:"plant_id" gorm:"size:32;not null;uniqueIndex:uq_plant_assignments_rfq_plant"`
	AssignedBy string    `json:"assigned_by" gorm:"size:32"`
	Status     string    `json:"status" gorm:"size:20;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (PlantAssignment) TableName() string {
	return "rfq_plant_assignments"
}

// Models 需要自动迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&Client{}, &Plant{}, &Currency{}, &RawMaterial{}, &JobType{}, &OtherCostType{}, &User{},
		&RFQ{}, &RFQRevision{}, &RFQDocument{},
		&SKU{}, &Product{}, &CostLedger{}, &JobCost{}, &OtherCost{},
		&Assignment{}, &PlantAssignment{},
	}
}
