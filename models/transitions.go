package models

// TransitionGuard names the contextual check a transition requires beyond the
// role check. The lifecycle engine evaluates guards; this table only names them.
type TransitionGuard string

const (
	GuardNone             TransitionGuard = ""
	GuardAssignmentExists TransitionGuard = "assignment_exists"
	GuardReasonRequired   TransitionGuard = "reason_required"
	GuardProofRequired    TransitionGuard = "proof_required"
	GuardAcceptOrTimeout  TransitionGuard = "acceptance_or_timeout"
	GuardApprovedDispute  TransitionGuard = "approved_dispute"
)

// TransitionRule is one legal (from, to, roles) triple. Anything not in the
// table is rejected.
type TransitionRule struct {
	From  ComplaintState
	To    ComplaintState
	Roles []Role
	Guard TransitionGuard
}

// transitionTable is the complete legal transition graph. Ownership checks
// (assigned staff, complaint owner, same department) are enforced by the
// lifecycle engine on top of the role list.
var transitionTable = []TransitionRule{
	{StateFiled, StateInProgress, []Role{RoleStaff, RoleDeptHead, RoleAdmin, RoleSuperAdmin}, GuardAssignmentExists},
	{StateFiled, StateCancelled, []Role{RoleCitizen, RoleAdmin, RoleSuperAdmin}, GuardNone},
	{StateFiled, StateHold, []Role{RoleDeptHead, RoleAdmin, RoleSuperAdmin}, GuardReasonRequired},
	{StateInProgress, StateResolved, []Role{RoleStaff, RoleDeptHead}, GuardProofRequired},
	{StateInProgress, StateHold, []Role{RoleDeptHead, RoleAdmin}, GuardReasonRequired},
	{StateInProgress, StateCancelled, []Role{RoleAdmin, RoleSuperAdmin}, GuardReasonRequired},
	{StateResolved, StateClosed, []Role{RoleCitizen, RoleSystem}, GuardAcceptOrTimeout},
	{StateResolved, StateInProgress, []Role{RoleDeptHead}, GuardApprovedDispute},
	{StateHold, StateInProgress, []Role{RoleDeptHead, RoleAdmin}, GuardNone},
	{StateHold, StateCancelled, []Role{RoleAdmin, RoleSuperAdmin}, GuardNone},
}

// FindTransition returns the rule for (from, to), or nil when the edge is not
// in the graph.
func FindTransition(from, to ComplaintState) *TransitionRule {
	for i := range transitionTable {
		if transitionTable[i].From == from && transitionTable[i].To == to {
			return &transitionTable[i]
		}
	}
	return nil
}

// TransitionsFrom returns every rule whose source is the given state.
func TransitionsFrom(from ComplaintState) []TransitionRule {
	var rules []TransitionRule
	for _, r := range transitionTable {
		if r.From == from {
			rules = append(rules, r)
		}
	}
	return rules
}

// RoleAllowed reports whether the role appears in the rule's allowed list.
func (r *TransitionRule) RoleAllowed(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// TransitionContext carries the optional inputs a transition may require:
// a reason, an assignment, a resolution note, or a dispute outcome.
type TransitionContext struct {
	Reason     string `json:"reason,omitempty"`
	AssigneeID *int64 `json:"assignee_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
}
