package authz

import "github.com/peergrade-io/peergrade/internal/roles"

// CanViewOwnRecord is the display gate recurring across profile and key
// pages: anyone strictly above student tier may view any record; a
// student may view only their own.
func CanViewOwnRecord(role roles.Role, requesterID, targetID int64) bool {
	return role.Tier() > roles.TierStudent || requesterID == targetID
}

// HomeDestination returns the role-appropriate landing path a denied
// requester is redirected to.
func HomeDestination(role roles.Role) string {
	switch role.Name {
	case roles.NameSuperAdministrator, roles.NameAdministrator:
		return "/admin"
	case roles.NameInstructor:
		return "/instructor"
	case roles.NameTeachingAssistant:
		return "/assignments"
	case roles.NameStudent:
		return "/student_tasks"
	default:
		return "/login"
	}
}
