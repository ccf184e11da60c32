// Package perm implements Switchboard's permission predicates.
//
// The two management permissions (set_model, manage_config) fail closed:
// an empty role list restricts them to the community owner and
// administrators. Reply eligibility fails open: an empty role list means
// the bot replies to everyone. The asymmetry is intentional: the bot
// stays useful out of the box without letting an unprivileged role grant
// take over configuration.
package perm

// Actor is the platform-supplied identity of whoever sent a message or
// clicked a control.
type Actor struct {
	ID      string
	Name    string
	IsOwner bool // community owner
	IsAdmin bool // holds the platform's administrator permission
	RoleIDs []string
}

// holdsAny reports whether the actor holds at least one of the listed roles.
func (a Actor) holdsAny(roles []string) bool {
	for _, want := range roles {
		for _, have := range a.RoleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanReplyTo reports whether the bot may respond to this actor at all,
// given the community's reply_to role list. An empty list means everyone
// is eligible.
func CanReplyTo(a Actor, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	return a.holdsAny(roles)
}

// CanSetModel reports whether the actor may change the community's model,
// given the set_model role list. Owner and administrators always may;
// otherwise an empty list denies everyone else.
func CanSetModel(a Actor, roles []string) bool {
	return managementAllowed(a, roles)
}

// CanManageConfig reports whether the actor may change community
// configuration (allowed models, roles, names, policies), given the
// manage_config role list.
func CanManageConfig(a Actor, roles []string) bool {
	return managementAllowed(a, roles)
}

func managementAllowed(a Actor, roles []string) bool {
	if a.IsOwner || a.IsAdmin {
		return true
	}
	if len(roles) == 0 {
		return false
	}
	return a.holdsAny(roles)
}
