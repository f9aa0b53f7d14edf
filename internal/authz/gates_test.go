package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peergrade-io/peergrade/internal/roles"
)

func TestCanViewOwnRecord(t *testing.T) {
	assert.True(t, CanViewOwnRecord(student, 7, 7), "students see their own record")
	assert.False(t, CanViewOwnRecord(student, 7, 8), "students see nothing else")
	assert.True(t, CanViewOwnRecord(assistant, 7, 8))
	assert.True(t, CanViewOwnRecord(instructor, 7, 8))
	assert.True(t, CanViewOwnRecord(superAdmin, 7, 8))
}

func TestHomeDestination(t *testing.T) {
	assert.Equal(t, "/admin", HomeDestination(superAdmin))
	assert.Equal(t, "/admin", HomeDestination(admin))
	assert.Equal(t, "/instructor", HomeDestination(instructor))
	assert.Equal(t, "/assignments", HomeDestination(assistant))
	assert.Equal(t, "/student_tasks", HomeDestination(student))
	assert.Equal(t, "/login", HomeDestination(roles.Role{}))
}
