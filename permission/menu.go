package permission

// Visibility is the derived feature-flag view handed to presentation code.
// Presentation code must consult this mapping (or the Has* predicates), never
// raw permission identifiers.
type Visibility struct {
	Dashboard           bool `json:"dashboard"`
	UserManagement      bool `json:"userManagement"`
	SystemConfig        bool `json:"systemConfig"`
	DataManagement      bool `json:"dataManagement"`
	Reports             bool `json:"reports"`
	Settings            bool `json:"settings"`
	Approval            bool `json:"approval"`
	SystemLogs          bool `json:"systemLogs"`
	ExternalIntegration bool `json:"externalIntegration"`
	InternalTools       bool `json:"internalTools"`
	Advanced            bool `json:"advanced"`
}

// MenuVisibility derives the feature-flag mapping from the current role and
// overrides. Each flag is a fixed expression over Has* predicates.
func (e *Engine) MenuVisibility() Visibility {
	return Visibility{
		Dashboard:           true,
		UserManagement:      e.HasPermission(UserList),
		SystemConfig:        e.IsAdmin(),
		DataManagement:      e.HasPermission(DataRead),
		Reports:             e.HasPermission(ReportView),
		Settings:            e.HasPermission(SettingsView),
		Approval:            e.HasAnyPermission(ApprovalRequest, ApprovalProcess),
		SystemLogs:          e.HasPermission(SystemLogs),
		ExternalIntegration: e.HasPermission(ExternalAPI),
		InternalTools:       e.HasPermission(InternalTools),
		Advanced:            e.IsManagerOrAbove(),
	}
}
