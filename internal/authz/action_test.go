package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peergrade-io/peergrade/internal/roles"
)

var (
	student    = roles.Role{ID: 1, Name: roles.NameStudent}
	assistant  = roles.Role{ID: 2, Name: roles.NameTeachingAssistant}
	instructor = roles.Role{ID: 3, Name: roles.NameInstructor}
	admin      = roles.Role{ID: 4, Name: roles.NameAdministrator}
	superAdmin = roles.Role{ID: 5, Name: roles.NameSuperAdministrator}
)

func TestIsActionAllowedTable(t *testing.T) {
	cases := []struct {
		name     string
		role     roles.Role
		loggedIn bool
		action   Action
		want     bool
	}{
		{"pending list needs admin", student, true, ActionListPendingRequested, false},
		{"pending list denies assistant", assistant, true, ActionListPendingRequested, false},
		{"pending list allows instructor", instructor, true, ActionListPendingRequested, true},
		{"pending list allows admin", admin, true, ActionListPendingRequested, true},
		{"pending list allows super-admin", superAdmin, true, ActionListPendingRequested, true},

		{"signup entry is open", roles.Role{}, false, ActionNewUser, true},
		{"signup entry open when logged in", student, true, ActionNewUser, true},

		{"keys allow student", student, true, ActionKeys, true},
		{"keys deny anonymous", roles.Role{}, false, ActionKeys, false},
		{"index allows student", student, true, ActionIndex, true},
		{"index denies anonymous", roles.Role{}, false, ActionIndex, false},

		{"show needs only a session", student, true, ActionShow, true},
		{"show denies anonymous", roles.Role{}, false, ActionShow, false},
		{"toggle needs only a session", student, true, ActionSetAnonymizedView, true},
		{"toggle denies anonymous", roles.Role{}, false, ActionSetAnonymizedView, false},

		{"create falls to assistant default", student, true, ActionCreateUser, false},
		{"create allows assistant", assistant, true, ActionCreateUser, true},
		{"destroy allows instructor", instructor, true, ActionDeleteUser, true},
		{"search denies student", student, true, ActionSearchUsers, false},
		{"search allows assistant", assistant, true, ActionSearchUsers, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsActionAllowed(tc.role, tc.loggedIn, tc.action))
		})
	}
}

func TestUnknownActionUsesDefault(t *testing.T) {
	const unknown = Action("export_everything")

	assert.Equal(t, RequireTAPrivileges, RequirementFor(unknown))
	assert.False(t, IsActionAllowed(student, true, unknown), "unknown actions never open up")
	assert.True(t, IsActionAllowed(assistant, true, unknown))
	assert.False(t, IsActionAllowed(superAdmin, false, unknown), "no session, no default access")
}

func TestFirstMatchingRuleWins(t *testing.T) {
	// "index" appears in the student rule; the later default must not
	// shadow it for students.
	assert.Equal(t, RequireStudentPrivileges, RequirementFor(ActionIndex))
	assert.True(t, IsActionAllowed(student, true, ActionIndex))
}
