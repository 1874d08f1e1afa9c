package permission

// Role identifies a position in the flat role hierarchy.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleInternal Role = "internal"
	RoleExternal Role = "external"
	RoleUser     Role = "user"
)

// roleRank orders roles for "at least as privileged as" comparisons; a higher
// number outranks a lower one.
var roleRank = map[Role]int{
	RoleAdmin:    5,
	RoleManager:  4,
	RoleInternal: 3,
	RoleExternal: 2,
	RoleUser:     1,
}

// Permission identifiers, namespaced as domain:action.
const (
	UserCreate = "user:create"
	UserRead   = "user:read"
	UserUpdate = "user:update"
	UserDelete = "user:delete"
	UserList   = "user:list"

	SystemConfig  = "system:config"
	SystemLogs    = "system:logs"
	SystemBackup  = "system:backup"
	SystemMonitor = "system:monitor"

	DataCreate = "data:create"
	DataRead   = "data:read"
	DataUpdate = "data:update"
	DataDelete = "data:delete"
	DataExport = "data:export"
	DataImport = "data:import"

	ReportView     = "report:view"
	ReportCreate   = "report:create"
	ReportExport   = "report:export"
	ReportAdvanced = "report:advanced"

	SettingsView = "settings:view"
	SettingsEdit = "settings:edit"

	ApprovalRequest = "approval:request"
	ApprovalProcess = "approval:process"
	ApprovalAdmin   = "approval:admin"

	ExternalAPI         = "external:api"
	ExternalIntegration = "external:integration"

	InternalTools = "internal:tools"
	InternalAdmin = "internal:admin"
)

// catalog enumerates every known permission identifier.
var catalog = []string{
	UserCreate, UserRead, UserUpdate, UserDelete, UserList,
	SystemConfig, SystemLogs, SystemBackup, SystemMonitor,
	DataCreate, DataRead, DataUpdate, DataDelete, DataExport, DataImport,
	ReportView, ReportCreate, ReportExport, ReportAdvanced,
	SettingsView, SettingsEdit,
	ApprovalRequest, ApprovalProcess, ApprovalAdmin,
	ExternalAPI, ExternalIntegration,
	InternalTools, InternalAdmin,
}

var catalogIndex = func() map[string]bool {
	index := make(map[string]bool, len(catalog))
	for _, id := range catalog {
		index[id] = true
	}
	return index
}()

// rolePermissions maps each role to its granted permission set. Capabilities
// are explicit per role, not inherited down the hierarchy; only admin holds
// the union of all permissions.
var rolePermissions = map[Role][]string{
	RoleAdmin: append([]string{}, catalog...),

	RoleManager: {
		UserCreate, UserRead, UserUpdate, UserList,
		DataCreate, DataRead, DataUpdate, DataExport, DataImport,
		ReportView, ReportCreate, ReportExport, ReportAdvanced,
		SettingsView, SettingsEdit,
		ApprovalRequest, ApprovalProcess,
		SystemMonitor,
		InternalTools,
	},

	RoleInternal: {
		UserRead, UserList,
		DataCreate, DataRead, DataUpdate, DataExport,
		ReportView, ReportCreate, ReportExport,
		SettingsView,
		ApprovalRequest,
		InternalTools, InternalAdmin,
	},

	RoleExternal: {
		DataRead, DataCreate, DataUpdate,
		ReportView, ReportExport,
		SettingsView,
		ApprovalRequest,
		ExternalAPI, ExternalIntegration,
	},

	RoleUser: {
		DataRead,
		ReportView,
		SettingsView,
		ApprovalRequest,
	},
}

// Roles returns every role in the catalog, highest rank first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleInternal, RoleExternal, RoleUser}
}

// KnownRole reports whether role belongs to the fixed role catalog.
func KnownRole(role Role) bool {
	_, ok := roleRank[role]
	return ok
}

// KnownPermission reports whether id belongs to the permission catalog.
func KnownPermission(id string) bool {
	return catalogIndex[id]
}

// Catalog returns a copy of the full permission catalog.
func Catalog() []string {
	return append([]string{}, catalog...)
}

// RankOf returns the numeric rank of role, 0 when unknown.
func RankOf(role Role) int {
	return roleRank[role]
}

// PermissionsOf returns a copy of the permission set granted to role.
func PermissionsOf(role Role) []string {
	return append([]string{}, rolePermissions[role]...)
}
