package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/metrics"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/lifecycle"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Actor 当前操作人
type Actor struct {
	UserID string `json:"user_id" validate:"required"`
	RoleID string `json:"role_id" validate:"required"`
}

type AssignInput struct {
	RFQID    string `json:"rfq_id" validate:"required"`
	From     Actor  `json:"from"`
	ToUserID string `json:"to_user_id" validate:"required"`
	ToRoleID string `json:"to_role_id" validate:"required"`
	Comment  string `json:"comment"`
}

type ApprovalInput struct {
	RFQID       string   `json:"rfq_id" validate:"required"`
	Actor       Actor    `json:"actor"`
	TargetState string   `json:"target_state" validate:"required"`
	PlantIDs    []string `json:"plant_ids"`
	Comment     string   `json:"comment"`
}

type RejectWithStateInput struct {
	RFQID         string `json:"rfq_id" validate:"required"`
	Actor         Actor  `json:"actor"`
	Comment       string `json:"comment"`
	TargetStateID string `json:"target_state_id" validate:"required"`
}

// PlantOutcome 单个工厂的下发结果
type PlantOutcome struct {
	PlantID string `json:"plant_id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ApprovalResult 审批结果。多工厂下发逐个独立提交，部分失败不回滚已成功的工厂。
type ApprovalResult struct {
	RFQID  string         `json:"rfq_id"`
	State  string         `json:"state"`
	Plants []PlantOutcome `json:"plants,omitempty"`
}

// LifecycleService RFQ 状态流转与审计轨迹
type LifecycleService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewLifecycleService(repos *repository.Repositories, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{repos: repos, logger: logger}
}

// finish 业务错误原样返回，其他错误记录日志并转为 InternalFailure
func (s *LifecycleService) finish(transition string, rfqID string, err error) error {
	switch {
	case err == nil:
		metrics.LifecycleTransitionsTotal.WithLabelValues(transition, metrics.ResultSuccess).Inc()
		return nil
	case errs.IsBusiness(err):
		metrics.LifecycleTransitionsTotal.WithLabelValues(transition, metrics.ResultRejected).Inc()
		return err
	}
	metrics.LifecycleTransitionsTotal.WithLabelValues(transition, metrics.ResultError).Inc()
	s.logger.Error("lifecycle transition failed",
		zap.String("transition", transition),
		zap.String("rfq_id", rfqID),
		zap.Error(err))
	return errs.Internal(transition, err)
}

func requireComment(comment string) (string, error) {
	c := strings.TrimSpace(comment)
	if c == "" {
		return "", errs.Validation("comment is required")
	}
	return c, nil
}

func (s *LifecycleService) lockRFQ(ctx context.Context, tx *repository.Repositories, rfqID string) (*entity.RFQ, error) {
	rfq, err := tx.RFQ.FindByIDForUpdate(ctx, rfqID)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return rfq, nil
}

func (s *LifecycleService) requireUser(ctx context.Context, tx *repository.Repositories, userID string) (*entity.User, error) {
	u, err := tx.Master.FindUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %s does not exist", userID)
	}
	return u, nil
}

// Assign 指派给下一位负责人，追加审计记录。
// RFQ 同时进入 Assigned 状态，使后续审批能区分已有负责人的单据；
// 负责人本身只记在审计记录里，RFQ 行上不保存。
func (s *LifecycleService) Assign(ctx context.Context, in AssignInput) (*entity.Assignment, error) {
	var entry *entity.Assignment
	err := func() error {
		if err := validateInput(in); err != nil {
			return err
		}
		comment, err := requireComment(in.Comment)
		if err != nil {
			return err
		}
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			rfq, err := s.lockRFQ(ctx, tx, in.RFQID)
			if err != nil {
				return err
			}
			if _, err := s.requireUser(ctx, tx, in.From.UserID); err != nil {
				return err
			}
			to, err := s.requireUser(ctx, tx, in.ToUserID)
			if err != nil {
				return err
			}
			if to.RoleID != in.ToRoleID {
				return errs.Validation("user %s does not hold role %s", in.ToUserID, in.ToRoleID)
			}
			next, err := lifecycle.Check(lifecycle.Assign, in.From.RoleID, rfq.State)
			if err != nil {
				return err
			}
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, next); err != nil {
				return err
			}
			toUser, toRole := in.ToUserID, in.ToRoleID
			entry = &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     entity.ActionAssign,
				FromUserID: in.From.UserID,
				FromRoleID: in.From.RoleID,
				ToUserID:   &toUser,
				ToRoleID:   &toRole,
				FromState:  rfq.State,
				ToState:    next,
				Comment:    comment,
				CreatedAt:  time.Now(),
			}
			return tx.Assignment.Append(ctx, entry)
		})
	}()
	return entry, s.finish(string(lifecycle.Assign), in.RFQID, err)
}

// ApproveOrReject 审批。Approved 需至少一个工厂，每个工厂独立事务；Rejected 需评论。
func (s *LifecycleService) ApproveOrReject(ctx context.Context, in ApprovalInput) (*ApprovalResult, error) {
	if err := validateInput(in); err != nil {
		return nil, s.finish(string(lifecycle.Approve), in.RFQID, err)
	}
	switch in.TargetState {
	case entity.StateApproved:
		return s.approve(ctx, in)
	case entity.StateRejected:
		return s.reject(ctx, in)
	}
	return nil, s.finish(string(lifecycle.Approve), in.RFQID,
		errs.Validation("target_state must be %q or %q", entity.StateApproved, entity.StateRejected))
}

func (s *LifecycleService) approve(ctx context.Context, in ApprovalInput) (*ApprovalResult, error) {
	transition := string(lifecycle.Approve)
	plantIDs := dedupe(in.PlantIDs)
	if len(plantIDs) == 0 {
		return nil, s.finish(transition, in.RFQID, errs.Validation("plant_ids must contain at least one plant"))
	}

	rfq, err := s.repos.RFQ.FindByID(ctx, in.RFQID)
	if err != nil {
		return nil, s.finish(transition, in.RFQID, notFound(err, "rfq %s does not exist", in.RFQID))
	}
	if _, err := s.requireUser(ctx, s.repos, in.Actor.UserID); err != nil {
		return nil, s.finish(transition, in.RFQID, err)
	}
	if _, err := lifecycle.Check(lifecycle.Approve, in.Actor.RoleID, rfq.State); err != nil {
		return nil, s.finish(transition, in.RFQID, err)
	}
	comment := strings.TrimSpace(in.Comment)

	result := &ApprovalResult{RFQID: rfq.ID, State: rfq.State}
	var firstErr error
	approvedHere := false
	for _, plantID := range plantIDs {
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			locked, err := s.lockRFQ(ctx, tx, rfq.ID)
			if err != nil {
				return err
			}
			// 本次调用内已批准的RFQ继续下发到后续工厂
			if !(approvedHere && locked.State == entity.StateApproved) {
				if _, err := lifecycle.Check(lifecycle.Approve, in.Actor.RoleID, locked.State); err != nil {
					return err
				}
			}
			if _, err := tx.Master.FindPlant(ctx, plantID); err != nil {
				return notFound(err, "plant %s does not exist", plantID)
			}
			err = tx.Assignment.CreatePlantAssignment(ctx, &entity.PlantAssignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				PlantID:    plantID,
				AssignedBy: in.Actor.UserID,
				Status:     entity.StateApproved,
				CreatedAt:  time.Now(),
			})
			if errors.Is(err, repository.ErrDuplicate) {
				return errs.Conflict("rfq %s is already approved for plant %s", rfq.ID, plantID)
			}
			if err != nil {
				return err
			}
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, entity.StateApproved); err != nil {
				return err
			}
			return tx.Assignment.Append(ctx, &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     entity.ActionApprove,
				FromUserID: in.Actor.UserID,
				FromRoleID: in.Actor.RoleID,
				FromState:  locked.State,
				ToState:    entity.StateApproved,
				Comment:    comment,
				Metadata:   jsonMeta(map[string]interface{}{"plant_id": plantID}),
				CreatedAt:  time.Now(),
			})
		})
		err = s.finish(transition, rfq.ID, err)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Plants = append(result.Plants, PlantOutcome{PlantID: plantID, Message: errs.PublicMessage(err)})
			continue
		}
		approvedHere = true
		result.State = entity.StateApproved
		result.Plants = append(result.Plants, PlantOutcome{PlantID: plantID, Success: true, Message: "approved"})
	}

	if !approvedHere {
		return nil, firstErr
	}
	if firstErr != nil {
		s.logger.Warn("rfq approval partially applied",
			zap.String("rfq_id", rfq.ID),
			zap.Int("plants", len(plantIDs)),
			zap.Error(firstErr))
	}
	return result, nil
}

func (s *LifecycleService) reject(ctx context.Context, in ApprovalInput) (*ApprovalResult, error) {
	var result *ApprovalResult
	err := func() error {
		comment, err := requireComment(in.Comment)
		if err != nil {
			return err
		}
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			rfq, err := s.lockRFQ(ctx, tx, in.RFQID)
			if err != nil {
				return err
			}
			if _, err := s.requireUser(ctx, tx, in.Actor.UserID); err != nil {
				return err
			}
			next, err := lifecycle.Check(lifecycle.Reject, in.Actor.RoleID, rfq.State)
			if err != nil {
				return err
			}
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, next); err != nil {
				return err
			}
			result = &ApprovalResult{RFQID: rfq.ID, State: next}
			return tx.Assignment.Append(ctx, &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     entity.ActionReject,
				FromUserID: in.Actor.UserID,
				FromRoleID: in.Actor.RoleID,
				FromState:  rfq.State,
				ToState:    next,
				Comment:    comment,
				CreatedAt:  time.Now(),
			})
		})
	}()
	if err := s.finish(string(lifecycle.Reject), in.RFQID, err); err != nil {
		return nil, err
	}
	return result, nil
}

// RejectWithState 工厂负责人驳回，需指明驳回时所处的状态
func (s *LifecycleService) RejectWithState(ctx context.Context, in RejectWithStateInput) (*entity.Assignment, error) {
	var entry *entity.Assignment
	err := func() error {
		if err := validateInput(in); err != nil {
			return err
		}
		comment, err := requireComment(in.Comment)
		if err != nil {
			return err
		}
		if !lifecycle.Known(in.TargetStateID) {
			return errs.Validation("unknown state %q", in.TargetStateID)
		}
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			rfq, err := s.lockRFQ(ctx, tx, in.RFQID)
			if err != nil {
				return err
			}
			if _, err := s.requireUser(ctx, tx, in.Actor.UserID); err != nil {
				return err
			}
			if rfq.State != in.TargetStateID {
				return errs.Validation("rfq is in state %q, not %q", rfq.State, in.TargetStateID)
			}
			next, err := lifecycle.Check(lifecycle.RejectWithState, in.Actor.RoleID, rfq.State)
			if err != nil {
				return err
			}
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, next); err != nil {
				return err
			}
			entry = &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     entity.ActionReject,
				FromUserID: in.Actor.UserID,
				FromRoleID: in.Actor.RoleID,
				FromState:  rfq.State,
				ToState:    next,
				Comment:    comment,
				Metadata:   jsonMeta(map[string]interface{}{"rejected_from": rfq.State}),
				CreatedAt:  time.Now(),
			}
			return tx.Assignment.Append(ctx, entry)
		})
	}()
	return entry, s.finish(string(lifecycle.RejectWithState), in.RFQID, err)
}

// UpdateState 管理员直接覆盖状态，不做迁移校验
func (s *LifecycleService) UpdateState(ctx context.Context, rfqID, newState string, actor Actor) (*entity.RFQ, error) {
	var rfq *entity.RFQ
	err := func() error {
		if !lifecycle.Known(newState) {
			return errs.Validation("unknown state %q", newState)
		}
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			rfq, err = s.lockRFQ(ctx, tx, rfqID)
			if err != nil {
				return err
			}
			if _, err := s.requireUser(ctx, tx, actor.UserID); err != nil {
				return err
			}
			from := rfq.State
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, newState); err != nil {
				return err
			}
			rfq.State = newState
			return tx.Assignment.Append(ctx, &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     entity.ActionOverride,
				FromUserID: actor.UserID,
				FromRoleID: actor.RoleID,
				FromState:  from,
				ToState:    newState,
				CreatedAt:  time.Now(),
			})
		})
	}()
	if err := s.finish("update_state", rfqID, err); err != nil {
		return nil, err
	}
	return rfq, nil
}

// AddComment 仅追加评论，不改变状态
func (s *LifecycleService) AddComment(ctx context.Context, rfqID string, actor Actor, comment string) (*entity.Assignment, error) {
	var entry *entity.Assignment
	err := func() error {
		c, err := requireComment(comment)
		if err != nil {
			return err
		}
		rfq, err := s.repos.RFQ.FindByID(ctx, rfqID)
		if err != nil {
			return notFound(err, "rfq %s does not exist", rfqID)
		}
		if _, err := s.requireUser(ctx, s.repos, actor.UserID); err != nil {
			return err
		}
		entry = &entity.Assignment{
			ID:         newID(),
			RFQID:      rfq.ID,
			Action:     entity.ActionComment,
			FromUserID: actor.UserID,
			FromRoleID: actor.RoleID,
			FromState:  rfq.State,
			ToState:    rfq.State,
			Comment:    c,
			CreatedAt:  time.Now(),
		}
		return s.repos.Assignment.Append(ctx, entry)
	}()
	return entry, s.finish("comment", rfqID, err)
}

// Resubmit 驳回后重新提交审核
func (s *LifecycleService) Resubmit(ctx context.Context, rfqID string, actor Actor, comment string) (*entity.Assignment, error) {
	return s.simpleTransition(ctx, lifecycle.Resubmit, entity.ActionResubmit, rfqID, actor, comment, true)
}

// SendToPlant 已批准的RFQ下发到工厂，要求至少有一条工厂分配
func (s *LifecycleService) SendToPlant(ctx context.Context, rfqID string, actor Actor) (*entity.Assignment, error) {
	return s.simpleTransition(ctx, lifecycle.SendToPlant, entity.ActionSend, rfqID, actor, "", false)
}

func (s *LifecycleService) simpleTransition(ctx context.Context, t lifecycle.Transition, action, rfqID string, actor Actor, comment string, needComment bool) (*entity.Assignment, error) {
	var entry *entity.Assignment
	err := func() error {
		c := strings.TrimSpace(comment)
		if needComment && c == "" {
			return errs.Validation("comment is required")
		}
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			rfq, err := s.lockRFQ(ctx, tx, rfqID)
			if err != nil {
				return err
			}
			if _, err := s.requireUser(ctx, tx, actor.UserID); err != nil {
				return err
			}
			next, err := lifecycle.Check(t, actor.RoleID, rfq.State)
			if err != nil {
				return err
			}
			if t == lifecycle.SendToPlant {
				n, err := tx.Assignment.CountPlantAssignments(ctx, rfq.ID)
				if err != nil {
					return err
				}
				if n == 0 {
					return errs.Incomplete("rfq %s has no plant assignments", rfq.ID)
				}
			}
			if err := tx.RFQ.UpdateState(ctx, rfq.ID, next); err != nil {
				return err
			}
			entry = &entity.Assignment{
				ID:         newID(),
				RFQID:      rfq.ID,
				Action:     action,
				FromUserID: actor.UserID,
				FromRoleID: actor.RoleID,
				FromState:  rfq.State,
				ToState:    next,
				Comment:    c,
				CreatedAt:  time.Now(),
			}
			return tx.Assignment.Append(ctx, entry)
		})
	}()
	return entry, s.finish(string(t), rfqID, err)
}

// History 审计轨迹，按时间正序
func (s *LifecycleService) History(ctx context.Context, rfqID string) ([]entity.Assignment, error) {
	if _, err := s.repos.RFQ.FindByID(ctx, rfqID); err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return s.repos.Assignment.ListByRFQ(ctx, rfqID)
}

func (s *LifecycleService) ListPlantAssignments(ctx context.Context, rfqID string) ([]entity.PlantAssignment, error) {
	if _, err := s.repos.RFQ.FindByID(ctx, rfqID); err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return s.repos.Assignment.ListPlantAssignments(ctx, rfqID)
}

// AllowedTransitions 当前角色在RFQ当前状态下可执行的迁移
func (s *LifecycleService) AllowedTransitions(ctx context.Context, rfqID, roleID string) ([]lifecycle.Transition, error) {
	rfq, err := s.repos.RFQ.FindByID(ctx, rfqID)
	if err != nil {
		return nil, notFound(err, "rfq %s does not exist", rfqID)
	}
	return lifecycle.Allowed(roleID, rfq.State), nil
}

func jsonMeta(m map[string]interface{}) datatypes.JSON {
	b, _ := json.Marshal(m)
	return datatypes.JSON(b)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
