package governance

import (
	"sort"
	"strings"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Service enforces the multi-role reviewer quorum on top of Store's raw
// CRUD.
type Service struct {
	store               *Store
	requiredRoles       []string
	minApprovalCount    int
}

// NewService normalizes requiredRoles to lower-case, drops blanks, and
// clamps minApprovalCount to at least 1.
func NewService(store *Store, requiredRoles []string, minApprovalCount int) *Service {
	roles := make([]string, 0, len(requiredRoles))
	for _, r := range requiredRoles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	if minApprovalCount < 1 {
		minApprovalCount = 1
	}
	return &Service{store: store, requiredRoles: roles, minApprovalCount: minApprovalCount}
}

func (s *Service) RegisterDraft(strategyName, version, description, paramsHash, createdBy string) (int64, error) {
	return s.store.RegisterDraft(strategyName, version, description, paramsHash, createdBy)
}

// SubmitReview moves a version from DRAFT or REJECTED to IN_REVIEW. Any
// other current status is a no-op that returns the version's existing id
// unchanged.
func (s *Service) SubmitReview(strategyName, version string) (int64, error) {
	v, err := s.store.GetVersion(strategyName, version)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return -1, nil
	}
	if v.Status != domain.StrategyDraft && v.Status != domain.StrategyRejected {
		return v.ID, nil
	}
	return s.store.UpdateStatus(strategyName, version, domain.StrategyInReview, "submitted for review", "")
}

// Decide records a reviewer's vote and re-evaluates the governance policy.
// APPROVED and RETIRED are terminal: votes against a version in either
// state are recorded nowhere and the version is returned unchanged.
func (s *Service) Decide(strategyName, version, reviewer, reviewerRole string, decision domain.StrategyDecisionType, note string) (*domain.StrategyVersion, error) {
	reviewerRole = strings.ToLower(strings.TrimSpace(reviewerRole))
	v, err := s.store.GetVersion(strategyName, version)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	if v.Status == domain.StrategyApproved || v.Status == domain.StrategyRetired {
		return v, nil
	}
	if v.Status == domain.StrategyDraft {
		if _, err := s.store.UpdateStatus(strategyName, version, domain.StrategyInReview, "auto-moved to IN_REVIEW by decision", ""); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.RecordDecision(strategyName, version, reviewer, reviewerRole, decision, note); err != nil {
		return nil, err
	}

	latest, err := s.store.LatestDecisionByRole(strategyName, version)
	if err != nil {
		return nil, err
	}

	for _, d := range latest {
		if d.Decision == domain.DecisionReject {
			if _, err := s.store.UpdateStatus(strategyName, version, domain.StrategyRejected, "Rejected by review decision.", ""); err != nil {
				return nil, err
			}
			return s.store.GetVersion(strategyName, version)
		}
	}

	approvedRoles := make([]string, 0, len(latest))
	for role, d := range latest {
		if d.Decision == domain.DecisionApprove {
			approvedRoles = append(approvedRoles, role)
		}
	}
	sort.Strings(approvedRoles)

	if requiredSubset(s.requiredRoles, approvedRoles) && len(approvedRoles) >= s.minApprovalCount {
		approvedBy := strings.Join(approvedRoles, ",")
		if _, err := s.store.UpdateStatus(strategyName, version, domain.StrategyApproved, "Approved by governance policy.", approvedBy); err != nil {
			return nil, err
		}
		return s.store.GetVersion(strategyName, version)
	}

	if _, err := s.store.UpdateStatus(strategyName, version, domain.StrategyInReview, "Waiting for more approval decisions.", ""); err != nil {
		return nil, err
	}
	return s.store.GetVersion(strategyName, version)
}

// Approve is a backward-compatible wrapper for callers that only know
// about a single risk-reviewer gate.
func (s *Service) Approve(strategyName, version, reviewer, note string) (*domain.StrategyVersion, error) {
	return s.Decide(strategyName, version, reviewer, "risk", domain.DecisionApprove, note)
}

func (s *Service) ListVersions(strategyName string, limit int) ([]domain.StrategyVersion, error) {
	return s.store.ListVersions(strategyName, limit)
}

func (s *Service) ListDecisions(strategyName, version string, limit int) ([]domain.StrategyDecision, error) {
	return s.store.ListDecisions(strategyName, version, limit)
}

func (s *Service) LatestApproved(strategyName string) (*domain.StrategyVersion, error) {
	return s.store.LatestApproved(strategyName)
}

func (s *Service) IsApproved(strategyName string) (bool, error) {
	v, err := s.store.LatestApproved(strategyName)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// requiredSubset reports whether every role in required also appears in
// approved. approved is assumed sorted; required need not be.
func requiredSubset(required, approved []string) bool {
	set := make(map[string]struct{}, len(approved))
	for _, r := range approved {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
