// Package lifecycle RFQ 状态机：合法迁移与角色约束
package lifecycle

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
)

// Transition 受约束的状态迁移
type Transition string

const (
	Assign          Transition = "assign"
	Approve         Transition = "approve"
	Reject          Transition = "reject"
	RejectWithState Transition = "reject_with_state"
	Resubmit        Transition = "resubmit"
	SendToPlant     Transition = "send_to_plant"
)

type rule struct {
	from  []string
	to    string
	roles []string
}

var rules = map[Transition]rule{
	Assign: {
		from:  []string{entity.StateDraft, entity.StatePendingReview, entity.StateAssigned},
		to:    entity.StateAssigned,
		roles: []string{entity.RoleAdmin, entity.RoleSales, entity.RoleManager},
	},
	Approve: {
		from:  []string{entity.StateDraft, entity.StatePendingReview, entity.StateAssigned},
		to:    entity.StateApproved,
		roles: []string{entity.RoleAdmin, entity.RoleManager},
	},
	Reject: {
		from:  []string{entity.StateDraft, entity.StatePendingReview, entity.StateAssigned},
		to:    entity.StateRejected,
		roles: []string{entity.RoleAdmin, entity.RoleManager},
	},
	RejectWithState: {
		from:  []string{entity.StatePendingReview, entity.StateAssigned, entity.StateApproved, entity.StateSentToPlant},
		to:    entity.StateRejected,
		roles: []string{entity.RoleAdmin, entity.RolePlantHead},
	},
	Resubmit: {
		from:  []string{entity.StateRejected},
		to:    entity.StatePendingReview,
		roles: []string{entity.RoleAdmin, entity.RoleSales, entity.RoleManager},
	},
	SendToPlant: {
		from:  []string{entity.StateApproved},
		to:    entity.StateSentToPlant,
		roles: []string{entity.RoleAdmin, entity.RoleManager},
	},
}

// StateInfo 状态目录项
type StateInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Terminal bool   `json:"terminal"`
}

var catalog = []StateInfo{
	{ID: entity.StateDraft, Name: "Draft"},
	{ID: entity.StatePendingReview, Name: "Pending Review"},
	{ID: entity.StateAssigned, Name: "Assigned"},
	{ID: entity.StateApproved, Name: "Approved"},
	{ID: entity.StateRejected, Name: "Rejected", Terminal: true},
	{ID: entity.StateSentToPlant, Name: "Sent To Plant", Terminal: true},
	{ID: entity.StateRevised, Name: "Revised", Terminal: true},
}

// States 返回状态目录
func States() []StateInfo {
	out := make([]StateInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Known 是否为已知状态
func Known(state string) bool {
	for _, s := range catalog {
		if s.ID == state {
			return true
		}
	}
	return false
}

// Check 校验迁移，返回目标状态。角色不符返回 Forbidden；
// 已处于目标状态返回 Conflict；其余非法来源状态返回 ValidationError。
func Check(t Transition, role, current string) (string, error) {
	r, ok := rules[t]
	if !ok {
		return "", errs.Validation("unknown transition %q", t)
	}
	if !contains(r.roles, role) {
		return "", errs.Forbidden("role %q may not %s an rfq", role, t)
	}
	if current == r.to && t != Assign {
		return "", errs.Conflict("rfq is already %s", current)
	}
	if !contains(r.from, current) {
		return "", errs.Validation("cannot %s an rfq in state %q", t, current)
	}
	return r.to, nil
}

// Allowed 当前状态下该角色可执行的迁移
func Allowed(role, current string) []Transition {
	var out []Transition
	for _, t := range []Transition{Assign, Approve, Reject, RejectWithState, Resubmit, SendToPlant} {
		if _, err := Check(t, role, current); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
