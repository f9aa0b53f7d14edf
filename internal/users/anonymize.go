package users

import (
	"fmt"
	"strings"

	"github.com/peergrade-io/peergrade/internal/roles"
)

// Anonymized display replaces identity-revealing fields with role-based
// placeholders while the anonymized view is active for the viewer's
// client address.

// DisplayName returns the username, masked as "<role> <id>" when anonymized.
func DisplayName(u *User, role *roles.Role, anonymized bool) string {
	if anonymized {
		return fmt.Sprintf("%s %d", role.Name, u.ID)
	}
	return u.Name
}

// DisplayFullName returns the full name, masked as "<role>, <id>" when
// anonymized.
func DisplayFullName(u *User, role *roles.Role, anonymized bool) string {
	if anonymized {
		return fmt.Sprintf("%s, %d", role.Name, u.ID)
	}
	return u.FullName
}

// DisplayEmail returns the email, masked to a mailinator placeholder when
// anonymized.
func DisplayEmail(u *User, role *roles.Role, anonymized bool) string {
	if anonymized {
		return fmt.Sprintf("%s_%d@mailinator.com", role.Name, u.ID)
	}
	return u.Email
}

// DisplayFirstName returns the first name when anonymized falls back to
// the role name. Full names are stored "Last, First"; the first word after
// the comma is the first name.
func DisplayFirstName(u *User, role *roles.Role, anonymized bool) string {
	if anonymized {
		return role.Name
	}
	_, after, found := strings.Cut(u.FullName, ",")
	if !found {
		return ""
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
