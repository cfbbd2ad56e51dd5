package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/clubportal/permission"
)

func TestCan_AdminAlwaysAllowed(t *testing.T) {
	admin := &permission.User{ID: "a1", Role: permission.RoleAdmin}

	for _, a := range []permission.Action{
		permission.ManageClasses, permission.ImportData, permission.EditAnyLog, "not_a_real_action",
	} {
		assert.True(t, permission.Can(admin, a, nil), "admin should be allowed %s", a)
	}
}

func TestCan_ManageClasses_RegistrarOnly(t *testing.T) {
	assert.True(t, permission.Can(&permission.User{Role: permission.RoleRegistrar}, permission.ManageClasses, nil))
	assert.False(t, permission.Can(&permission.User{Role: permission.RoleTeacher}, permission.ManageClasses, nil))
	assert.False(t, permission.Can(&permission.User{Role: permission.RoleMember}, permission.ManageClasses, nil))
}

func TestCan_ViewClassRoster_TeacherNeedsToInstruct(t *testing.T) {
	// GIVEN: A class taught by uid t1 and by "Smith"
	ctx := &permission.Context{Instructors: []string{"t1", "Smith"}}

	// THEN: Registrar always, teachers only when listed by id or last name
	assert.True(t, permission.Can(&permission.User{ID: "r1", Role: permission.RoleRegistrar}, permission.ViewClassRoster, nil))
	assert.True(t, permission.Can(&permission.User{ID: "t1", Role: permission.RoleTeacher}, permission.ViewClassRoster, ctx))
	assert.True(t, permission.Can(&permission.User{ID: "t2", Role: permission.RoleTeacher, LastName: "Smith"}, permission.ViewClassRoster, ctx))
	assert.False(t, permission.Can(&permission.User{ID: "t3", Role: permission.RoleTeacher, LastName: "Jones"}, permission.ViewClassRoster, ctx))
	assert.False(t, permission.Can(&permission.User{ID: "t1", Role: permission.RoleTeacher}, permission.ViewClassRoster, nil))
}

func TestCan_EmailClass_MatchesIDOnly(t *testing.T) {
	ctx := &permission.Context{Instructors: []string{"Smith"}}
	teacher := &permission.User{ID: "t2", Role: permission.RoleTeacher, LastName: "Smith"}

	assert.False(t, permission.Can(teacher, permission.EmailClass, ctx))
	assert.True(t, permission.Can(teacher, permission.EmailClass, &permission.Context{Instructors: []string{"t2"}}))
}

func TestCan_UnknownActionDenied(t *testing.T) {
	assert.False(t, permission.Can(&permission.User{Role: permission.RoleRegistrar}, "launch_rockets", nil))
}

func TestCan_NilUserDenied(t *testing.T) {
	assert.False(t, permission.Can(nil, permission.ViewOwnDogs, nil))
}

func TestCan_PortalActionsAdminOnly(t *testing.T) {
	manager := &permission.User{Role: permission.RoleManager}
	assert.True(t, permission.Can(manager, permission.ViewAdminConsole, nil))
	assert.False(t, permission.Can(manager, permission.ImportData, nil))
	assert.False(t, permission.Can(manager, permission.ReviewLogs, nil))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, permission.RoleAdmin, permission.ParseRole(" Admin "))
	assert.Equal(t, permission.RoleMember, permission.ParseRole(""))
	assert.Equal(t, permission.RoleMember, permission.ParseRole("superuser"))
}
