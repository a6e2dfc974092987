package chat

// Role represents a member's role inside a group.
type Role uint8

const (
	// RoleNone means no role, or an unrecognized wire value.
	RoleNone Role = iota
	// RoleVisitor can read but not post in moderated rooms.
	RoleVisitor
	// RoleParticipant is a regular posting member.
	RoleParticipant
	// RoleModerator can moderate the room.
	RoleModerator
)

// Affiliation represents a member's long-lived standing with a group.
type Affiliation uint8

const (
	// AffiliationNone means no affiliation, or an unrecognized wire value.
	AffiliationNone Affiliation = iota
	// AffiliationOutcast is banned from the group.
	AffiliationOutcast
	// AffiliationMember is on the group's member list.
	AffiliationMember
	// AffiliationAdmin can manage the member list.
	AffiliationAdmin
	// AffiliationOwner controls the room configuration.
	AffiliationOwner
)

var roleNames = map[Role]string{
	RoleNone:        "none",
	RoleVisitor:     "visitor",
	RoleParticipant: "participant",
	RoleModerator:   "moderator",
}

var affiliationNames = map[Affiliation]string{
	AffiliationNone:    "none",
	AffiliationOutcast: "outcast",
	AffiliationMember:  "member",
	AffiliationAdmin:   "admin",
	AffiliationOwner:   "owner",
}

// String returns the wire form of the role.
func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "none"
}

// String returns the wire form of the affiliation.
func (a Affiliation) String() string {
	if s, ok := affiliationNames[a]; ok {
		return s
	}
	return "none"
}

// ParseRole maps a wire role string to a Role. Unknown strings map to
// RoleNone rather than failing, since servers may extend the set.
func ParseRole(s string) Role {
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleNone
}

// ParseAffiliation maps a wire affiliation string to an Affiliation.
func ParseAffiliation(s string) Affiliation {
	for a, name := range affiliationNames {
		if name == s {
			return a
		}
	}
	return AffiliationNone
}
