// Package authz gates actions on the requester's role tier and provides
// the shared display gates used across user-facing handlers.
package authz

import "github.com/peergrade-io/peergrade/internal/roles"

// Action identifies a gated operation. Values mirror the legacy action
// names so existing clients and logs stay meaningful.
type Action string

const (
	ActionListPendingRequested Action = "list_pending_requested"
	ActionNewUser              Action = "new"
	ActionKeys                 Action = "keys"
	ActionIndex                Action = "index"
	ActionShow                 Action = "show"
	ActionSetAnonymizedView    Action = "set_anonymized_view"
	ActionCreateUser           Action = "create"
	ActionUpdateUser           Action = "update"
	ActionDeleteUser           Action = "destroy"
	ActionSearchUsers          Action = "search"
	ActionAutocomplete         Action = "autocomplete"
	ActionImpersonate          Action = "impersonate"
	ActionListRoles            Action = "list_roles"
	ActionAvailableRoles       Action = "available_roles"
)

// Requirement is the privilege a rule demands.
type Requirement int

const (
	// RequireAdminPrivileges gates privileged administrative actions.
	RequireAdminPrivileges Requirement = iota + 1
	// RequireNone admits unauthenticated callers (account creation entry).
	RequireNone
	// RequireStudentPrivileges admits any authenticated student or above.
	RequireStudentPrivileges
	// RequireLogin admits any authenticated identity regardless of role.
	RequireLogin
	// RequireTAPrivileges is the default: teaching assistant or above.
	RequireTAPrivileges
)

type rule struct {
	actions     []Action
	requirement Requirement
}

// ruleTable is evaluated in order; first match wins. Anything not listed,
// including unrecognized actions, falls through to the TA default — an
// unknown action is never implicitly allowed.
var ruleTable = []rule{
	{[]Action{ActionListPendingRequested}, RequireAdminPrivileges},
	{[]Action{ActionNewUser}, RequireNone},
	{[]Action{ActionKeys, ActionIndex}, RequireStudentPrivileges},
	{[]Action{ActionShow, ActionSetAnonymizedView}, RequireLogin},
}

// RequirementFor returns the privilege the action demands.
func RequirementFor(action Action) Requirement {
	for _, r := range ruleTable {
		for _, a := range r.actions {
			if a == action {
				return r.requirement
			}
		}
	}
	return RequireTAPrivileges
}

// IsActionAllowed decides whether a requester holding role (with loggedIn
// reporting whether any identity is bound at all) may perform action.
func IsActionAllowed(role roles.Role, loggedIn bool, action Action) bool {
	switch RequirementFor(action) {
	case RequireNone:
		return true
	case RequireLogin:
		return loggedIn
	case RequireStudentPrivileges:
		return loggedIn && role.Tier() >= roles.TierStudent
	case RequireAdminPrivileges:
		return loggedIn && role.Tier() >= roles.TierAdministrator
	default:
		return loggedIn && role.Tier() >= roles.TierTeachingAssistant
	}
}
