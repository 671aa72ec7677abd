package auth

import "fmt"

// Built-in permission tags held by client-kind tokens. Clients are tenants:
// they manage the users and roles living under their scope.
const (
	PermManageUsers = "keygate.users.manage"
	PermManageRoles = "keygate.roles.manage"
	PermAssignRoles = "keygate.roles.assign"
)

// BuiltinClientPermissions is the frozen snapshot embedded into every
// client-kind token at issuance.
var BuiltinClientPermissions = []string{
	PermManageUsers,
	PermManageRoles,
	PermAssignRoles,
}

// HasPermission reports flat set membership over the token's frozen
// permission snapshot. No wildcards, no hierarchy.
func (c *Claims) HasPermission(tag string) bool {
	for _, p := range c.Permissions {
		if p == tag {
			return true
		}
	}
	return false
}

// Authorize gates a role-restricted action on the validated claims.
// Returns ErrForbidden when the snapshot does not carry the permission;
// the denial is surfaced verbatim, distinct from an invalid token.
func Authorize(claims *Claims, permission string) error {
	if claims == nil {
		return ErrForbidden
	}
	if !claims.HasPermission(permission) {
		return ErrForbidden
	}
	return nil
}

// ValidPermissionTag reports whether the tag is a valid scope token per
// RFC 6749 section 3.3: one or more of %x21 / %x23-5B / %x5D-7E.
func ValidPermissionTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		if ch == 0x21 || (ch >= 0x23 && ch <= 0x5B) || (ch >= 0x5D && ch <= 0x7E) {
			continue
		}
		return false
	}
	return true
}

func validatePermissionTags(tags []string) error {
	for _, tag := range tags {
		if !ValidPermissionTag(tag) {
			return fmt.Errorf("%w: invalid permission tag %q", ErrInvalidInput, tag)
		}
	}
	return nil
}
