package roles

import "time"

// Canonical role names seeded at install time. Custom roles may be added
// underneath any of these in the role forest.
const (
	NameStudent            = "Student"
	NameTeachingAssistant  = "Teaching Assistant"
	NameInstructor         = "Instructor"
	NameAdministrator      = "Administrator"
	NameSuperAdministrator = "Super-Administrator"
)

// Role represents a role in the parent-linked role forest. ParentID is nil
// for top-level roles.
type Role struct {
	ID        int64
	Name      string
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tier is the privilege level used to gate actions. Tiers form a strict
// total order; each tier implies all lower tiers' permissions.
type Tier int

const (
	TierNone Tier = iota
	TierStudent
	TierTeachingAssistant
	// TierAdministrator covers both instructors and administrators.
	TierAdministrator
	TierSuperAdministrator
)

var tierByName = map[string]Tier{
	NameStudent:            TierStudent,
	NameTeachingAssistant:  TierTeachingAssistant,
	NameInstructor:         TierAdministrator,
	NameAdministrator:      TierAdministrator,
	NameSuperAdministrator: TierSuperAdministrator,
}

// TierForName maps a role name to its privilege tier. Unknown role names
// map to TierNone, which satisfies no gate.
func TierForName(name string) Tier {
	if t, ok := tierByName[name]; ok {
		return t
	}
	return TierNone
}

// Tier returns the privilege tier of the role.
func (r Role) Tier() Tier {
	return TierForName(r.Name)
}

// IsSuperAdmin reports whether the role is the super-administrator role.
func (r Role) IsSuperAdmin() bool {
	return r.Name == NameSuperAdministrator
}

// IsAdmin reports whether the role is the administrator role.
func (r Role) IsAdmin() bool {
	return r.Name == NameAdministrator
}

// IsInstructor reports whether the role is the instructor role.
func (r Role) IsInstructor() bool {
	return r.Name == NameInstructor
}

// IsTeachingAssistant reports whether the role is the teaching-assistant role.
func (r Role) IsTeachingAssistant() bool {
	return r.Name == NameTeachingAssistant
}

// IsStudent reports whether the role is the student role.
func (r Role) IsStudent() bool {
	return r.Name == NameStudent
}
