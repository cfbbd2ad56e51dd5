/*
permission.go - Capability checks for every privileged action

PURPOSE:
  A single pure function, Can, decides whether a user may perform an
  action. Handlers call it before any mutation of members, logs,
  imports or sheets.

RULES:
  - Admin may do everything.
  - Every other role is checked against a fixed table.
  - Some actions also look at a Context (e.g. the instructor list of a
    class) to allow teachers on their own classes only.
  - Unknown actions are denied and logged, never panicked on.

SEE ALSO:
  - api/middleware.go: Resolves the acting user from the session
*/
package permission

import (
	"log/slog"
	"slices"
	"strings"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleRegistrar Role = "registrar"
	RoleTeacher   Role = "teacher"
	RoleMember    Role = "member"
)

// ParseRole normalizes a stored role. Unknown or empty roles are members.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleRegistrar, RoleTeacher, RoleMember:
		return r
	}
	return RoleMember
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// =============================================================================
// ACTIONS
// =============================================================================

type Action string

const (
	ViewAdminConsole      Action = "view_admin_console"
	ViewTeachingDashboard Action = "view_teaching_dashboard"
	ManageClasses         Action = "manage_classes"
	ManageRoster          Action = "manage_roster"
	ViewClassRoster       Action = "view_class_roster"
	EmailClass            Action = "email_class"
	EditClassNotes        Action = "edit_class_notes"
	ViewOwnDogs           Action = "view_own_dogs"

	// Admin-only portal actions.
	ManageMembers  Action = "manage_members"
	ImportData     Action = "import_data"
	ExportData     Action = "export_data"
	ReviewLogs     Action = "review_logs"
	EditAnyLog     Action = "edit_any_log"
	BulkEntry      Action = "bulk_entry"
	ManageSheets   Action = "manage_sheets"
	ToggleRollover Action = "toggle_rollover"
)

// User is the acting identity as far as permissions are concerned.
type User struct {
	ID       string
	Role     Role
	LastName string
}

// Context carries per-object facts a rule may need.
type Context struct {
	// Instructors lists the user IDs or last names teaching a class.
	Instructors []string
}

type rule func(u *User, c *Context) bool

func roles(allowed ...Role) rule {
	return func(u *User, _ *Context) bool { return slices.Contains(allowed, u.Role) }
}

func adminOnly(*User, *Context) bool { return false }

func instructs(u *User, c *Context, matchLastName bool) bool {
	if c == nil {
		return false
	}
	if u.ID != "" && slices.Contains(c.Instructors, u.ID) {
		return true
	}
	return matchLastName && u.LastName != "" && slices.Contains(c.Instructors, u.LastName)
}

var table = map[Action]rule{
	ViewAdminConsole:      roles(RoleRegistrar, RoleManager),
	ViewTeachingDashboard: roles(RoleTeacher, RoleRegistrar),
	ManageClasses:         roles(RoleRegistrar),
	ManageRoster:          roles(RoleRegistrar),
	ViewClassRoster: func(u *User, c *Context) bool {
		return u.Role == RoleRegistrar || (u.Role == RoleTeacher && instructs(u, c, true))
	},
	EmailClass: func(u *User, c *Context) bool {
		return u.Role == RoleRegistrar || (u.Role == RoleTeacher && instructs(u, c, false))
	},
	EditClassNotes: func(u *User, c *Context) bool {
		return u.Role == RoleRegistrar || (u.Role == RoleTeacher && instructs(u, c, false))
	},
	ViewOwnDogs: func(*User, *Context) bool { return true },

	ManageMembers:  adminOnly,
	ImportData:     adminOnly,
	ExportData:     adminOnly,
	ReviewLogs:     adminOnly,
	EditAnyLog:     adminOnly,
	BulkEntry:      adminOnly,
	ManageSheets:   adminOnly,
	ToggleRollover: adminOnly,
}

// Can reports whether u may perform a. A nil user may do nothing.
func Can(u *User, a Action, c *Context) bool {
	if u == nil {
		return false
	}
	if u.Role.IsAdmin() {
		return true
	}
	r, ok := table[a]
	if !ok {
		slog.Warn("permission check for unknown action", "action", string(a), "role", string(u.Role))
		return false
	}
	return r(u, c)
}
