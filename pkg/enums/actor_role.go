package enums

import "fmt"

// ActorRole identifies who is requesting a booking transition. The identity
// layer validates credentials upstream; the core trusts the role it is handed.
type ActorRole string

const (
	RoleConsumer  ActorRole = "consumer"
	RoleProvider  ActorRole = "provider"
	RoleAdmin     ActorRole = "admin"
	RoleScheduler ActorRole = "scheduler"
)

var validActorRoles = []ActorRole{
	RoleConsumer,
	RoleProvider,
	RoleAdmin,
	RoleScheduler,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
