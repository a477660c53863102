// Package roles is the single source of truth for role, authority level and
// escalation path definitions. All lookups are pure functions over
// compile-time data.
package roles

type Role string

const (
	RoleAdmin            Role = "admin"
	RoleGeneralManager   Role = "general_manager"
	RoleManager          Role = "manager"
	RoleSupervisor       Role = "supervisor"
	RoleTeamLeader       Role = "team_leader"
	RoleOperator         Role = "operator"
	RoleTechnician       Role = "technician"
	RoleQCInspector      Role = "qc_inspector"
	RoleMaintenanceStaff Role = "maintenance_staff"
	RoleViewer           Role = "viewer"
)

// Authority levels. Lower number = higher authority.
const (
	LevelAdmin      = 1
	LevelManager    = 2
	LevelSupervisor = 3
	LevelTeamLeader = 4
	LevelOperator   = 5
	LevelViewer     = 6
)

var roleLevels = map[Role]int{
	RoleAdmin:            LevelAdmin,
	RoleGeneralManager:   LevelAdmin,
	RoleManager:          LevelManager,
	RoleSupervisor:       LevelSupervisor,
	RoleTeamLeader:       LevelTeamLeader,
	RoleOperator:         LevelOperator,
	RoleTechnician:       LevelOperator,
	RoleQCInspector:      LevelOperator,
	RoleMaintenanceStaff: LevelOperator,
	RoleViewer:           LevelViewer,
}

// LevelOf returns the authority level for a role, or LevelViewer for
// unknown roles.
func LevelOf(role Role) int {
	if level, ok := roleLevels[role]; ok {
		return level
	}
	return LevelViewer
}

func Normalize(role string) Role {
	if _, ok := roleLevels[Role(role)]; ok {
		return Role(role)
	}
	return RoleViewer
}

// ItemKind distinguishes the two escalatable item kinds.
type ItemKind string

const (
	KindIncident ItemKind = "incident"
	KindIdea     ItemKind = "idea"
)

// Rung is one step on a kind-specific escalation path. Rung numbering is
// independent of authority levels.
type Rung struct {
	Role Role
	Name string
}

// IncidentPath: User -> Team Leader -> Supervisor -> Manager -> Admin.
// Index 0 is rung 1.
var IncidentPath = []Rung{
	{Role: RoleTeamLeader, Name: "Team Leader"},
	{Role: RoleSupervisor, Name: "Supervisor"},
	{Role: RoleManager, Name: "Manager"},
	{Role: RoleAdmin, Name: "Admin/GM"},
}

// IdeaPath: Supervisor -> Manager -> General Manager.
var IdeaPath = []Rung{
	{Role: RoleSupervisor, Name: "Supervisor"},
	{Role: RoleManager, Name: "Manager"},
	{Role: RoleGeneralManager, Name: "General Manager"},
}

func PathFor(kind ItemKind) []Rung {
	switch kind {
	case KindIncident:
		return IncidentPath
	case KindIdea:
		return IdeaPath
	default:
		return nil
	}
}

// MaxRung returns the highest rung number for a kind, 0 for unknown kinds.
func MaxRung(kind ItemKind) int {
	return len(PathFor(kind))
}

// RungAt returns the rung definition for a 1-based rung number.
func RungAt(kind ItemKind, rung int) (Rung, bool) {
	path := PathFor(kind)
	if rung < 1 || rung > len(path) {
		return Rung{}, false
	}
	return path[rung-1], true
}
