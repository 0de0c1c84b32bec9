package lifecycle

import (
	"testing"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHappyPath(t *testing.T) {
	next, err := Check(Assign, entity.RoleSales, entity.StateDraft)
	require.NoError(t, err)
	assert.Equal(t, entity.StateAssigned, next)

	next, err = Check(Approve, entity.RoleManager, entity.StateAssigned)
	require.NoError(t, err)
	assert.Equal(t, entity.StateApproved, next)

	next, err = Check(SendToPlant, entity.RoleManager, entity.StateApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.StateSentToPlant, next)

	next, err = Check(Resubmit, entity.RoleSales, entity.StateRejected)
	require.NoError(t, err)
	assert.Equal(t, entity.StatePendingReview, next)
}

func TestCheckReassignIsAllowed(t *testing.T) {
	_, err := Check(Assign, entity.RoleManager, entity.StateAssigned)
	assert.NoError(t, err)
}

func TestCheckRoleGuard(t *testing.T) {
	_, err := Check(Approve, entity.RoleSales, entity.StateAssigned)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = Check(RejectWithState, entity.RoleManager, entity.StateApproved)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = Check(RejectWithState, entity.RolePlantHead, entity.StateApproved)
	assert.NoError(t, err)
}

func TestCheckStateGuard(t *testing.T) {
	_, err := Check(Approve, entity.RoleAdmin, entity.StateApproved)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	_, err = Check(Reject, entity.RoleAdmin, entity.StateRejected)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	_, err = Check(SendToPlant, entity.RoleAdmin, entity.StateDraft)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = Check(Assign, entity.RoleAdmin, entity.StateRevised)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = Check(Resubmit, entity.RoleAdmin, entity.StateApproved)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestKnownAndStates(t *testing.T) {
	assert.True(t, Known(entity.StateSentToPlant))
	assert.False(t, Known("archived"))

	states := States()
	require.Len(t, states, 7)
	states[0].Name = "changed"
	assert.Equal(t, "Draft", States()[0].Name)
}

func TestAllowed(t *testing.T) {
	assert.ElementsMatch(t, []Transition{Assign, Approve, Reject}, Allowed(entity.RoleManager, entity.StateDraft))
	assert.ElementsMatch(t, []Transition{RejectWithState}, Allowed(entity.RolePlantHead, entity.StateSentToPlant))
	assert.Empty(t, Allowed(entity.RoleEngineer, entity.StateDraft))
}
