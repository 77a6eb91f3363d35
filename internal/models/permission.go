package models

// PermissionLevel is the ordinal scale every authorization decision is
// made on. Comparisons are always on the numeric value.
type PermissionLevel int

const (
	LevelNone    PermissionLevel = 0
	LevelRead    PermissionLevel = 1
	LevelComment PermissionLevel = 2
	LevelEdit    PermissionLevel = 3
	LevelShare   PermissionLevel = 4
	LevelManage  PermissionLevel = 5
)

var levelNames = map[PermissionLevel]string{
	LevelNone:    "none",
	LevelRead:    "read",
	LevelComment: "comment",
	LevelEdit:    "edit",
	LevelShare:   "share",
	LevelManage:  "manage",
}

func (l PermissionLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "none"
}

// ParsePermissionLevel maps a level name back to its ordinal. Unknown
// names map to LevelNone.
func ParsePermissionLevel(name string) PermissionLevel {
	for level, n := range levelNames {
		if n == name {
			return level
		}
	}
	return LevelNone
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b PermissionLevel) PermissionLevel {
	if b > a {
		return b
	}
	return a
}

// Resource type tags used by policies, grants and the ability registry.
const (
	ResourceWorkspace = "workspace"
	ResourceSubspace  = "subspace"
	ResourceDocument  = "document"
	ResourceGroup     = "group"
	ResourceAll       = "all"
)

// Workspace roles.
const (
	WorkspaceRoleOwner  = "owner"
	WorkspaceRoleAdmin  = "admin"
	WorkspaceRoleMember = "member"
)

// Subspace roles.
const (
	SubspaceRoleAdmin  = "admin"
	SubspaceRoleMember = "member"
)

// WorkspaceRoleLevels maps a workspace role to the level it confers on
// resources inside that workspace. An unknown or absent role confers
// LevelNone.
var WorkspaceRoleLevels = map[string]PermissionLevel{
	WorkspaceRoleOwner:  LevelManage,
	WorkspaceRoleAdmin:  LevelShare,
	WorkspaceRoleMember: LevelRead,
}

// SubspaceRoleLevels maps a subspace role to a level. Note this mapping
// is coarser than the workspace one: subspace admins jump straight to
// manage. Intentional, do not collapse the two tables.
var SubspaceRoleLevels = map[string]PermissionLevel{
	SubspaceRoleAdmin:  LevelManage,
	SubspaceRoleMember: LevelRead,
}

// WorkspaceRoleLevel resolves a workspace role name, treating absence
// as LevelNone.
func WorkspaceRoleLevel(role string) PermissionLevel {
	return WorkspaceRoleLevels[role]
}

// SubspaceRoleLevel resolves a subspace role name, treating absence as
// LevelNone.
func SubspaceRoleLevel(role string) PermissionLevel {
	return SubspaceRoleLevels[role]
}

// Document actions and their minimum required levels. Strict threshold
// model: every action maps to exactly one minimum ordinal.
var DocumentActionLevels = map[string]PermissionLevel{
	"read":              LevelRead,
	"bulkExport":        LevelRead,
	"comment":           LevelComment,
	"update":            LevelEdit,
	"edit":              LevelEdit,
	"share":             LevelShare,
	"viewPermissions":   LevelShare,
	"bulkShare":         LevelShare,
	"delete":            LevelManage,
	"move":              LevelManage,
	"managePermissions": LevelManage,
	"bulkMove":          LevelManage,
	"bulkDelete":        LevelManage,
}

// DocumentActionLevel returns the threshold for a document action. The
// second return is false for actions that have no entry in the table;
// the guard denies those outright.
func DocumentActionLevel(action string) (PermissionLevel, bool) {
	level, ok := DocumentActionLevels[action]
	return level, ok
}
