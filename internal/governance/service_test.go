package governance

import (
	"fmt"
	"testing"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, requiredRoles []string, minApprovalCount int) *Service {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:governance_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "governance_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return NewService(store, requiredRoles, minApprovalCount)
}

func TestRegisterDraftStartsAtDraft(t *testing.T) {
	svc := newTestService(t, []string{"risk", "audit"}, 2)
	id, err := svc.RegisterDraft("trend_v2", "1.0.0", "initial draft", "hash1", "alice")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	v, err := svc.store.GetVersion("trend_v2", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyDraft, v.Status)
}

func TestQuorumRequiresAllRolesAndMinCount(t *testing.T) {
	svc := newTestService(t, []string{"risk", "audit"}, 2)
	_, err := svc.RegisterDraft("trend_v2", "1.0.0", "initial draft", "hash1", "alice")
	require.NoError(t, err)

	_, err = svc.SubmitReview("trend_v2", "1.0.0")
	require.NoError(t, err)

	v, err := svc.Decide("trend_v2", "1.0.0", "bob", "risk", domain.DecisionApprove, "looks fine")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyInReview, v.Status)

	v, err = svc.Decide("trend_v2", "1.0.0", "carol", "audit", domain.DecisionApprove, "checks out")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyApproved, v.Status)
	require.Equal(t, "audit,risk", v.ApprovedBy)

	// A later reject from an already-approved role no longer moves an
	// APPROVED version — it's terminal.
	v, err = svc.Decide("trend_v2", "1.0.0", "carol", "audit", domain.DecisionReject, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyApproved, v.Status)
}

func TestAnyRoleRejectionBlocksApproval(t *testing.T) {
	svc := newTestService(t, []string{"risk", "audit"}, 2)
	_, err := svc.RegisterDraft("trend_v2", "1.0.0", "initial draft", "hash1", "alice")
	require.NoError(t, err)

	v, err := svc.Decide("trend_v2", "1.0.0", "bob", "risk", domain.DecisionApprove, "ok")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyInReview, v.Status)

	v, err = svc.Decide("trend_v2", "1.0.0", "carol", "audit", domain.DecisionReject, "no good")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyRejected, v.Status)
}

func TestDecideAutoTransitionsDraftToInReview(t *testing.T) {
	svc := newTestService(t, []string{"risk"}, 1)
	_, err := svc.RegisterDraft("mean_reversion", "0.1.0", "draft", "hash2", "dave")
	require.NoError(t, err)

	v, err := svc.Decide("mean_reversion", "0.1.0", "erin", "risk", domain.DecisionApprove, "fine")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyApproved, v.Status)
}

func TestApproveWrapperUsesRiskRole(t *testing.T) {
	svc := newTestService(t, []string{"risk"}, 1)
	_, err := svc.RegisterDraft("mean_reversion", "0.1.0", "draft", "hash2", "dave")
	require.NoError(t, err)

	v, err := svc.Approve("mean_reversion", "0.1.0", "frank", "legacy approval path")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyApproved, v.Status)

	approved, err := svc.IsApproved("mean_reversion")
	require.NoError(t, err)
	require.True(t, approved)
}

func TestSubmitReviewIsNoOpOutsideDraftOrRejected(t *testing.T) {
	svc := newTestService(t, []string{"risk"}, 1)
	id, err := svc.RegisterDraft("mean_reversion", "0.1.0", "draft", "hash2", "dave")
	require.NoError(t, err)

	_, err = svc.Decide("mean_reversion", "0.1.0", "erin", "risk", domain.DecisionApprove, "fine")
	require.NoError(t, err)

	returnedID, err := svc.SubmitReview("mean_reversion", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, id, returnedID)

	v, err := svc.store.GetVersion("mean_reversion", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, domain.StrategyApproved, v.Status)
}
