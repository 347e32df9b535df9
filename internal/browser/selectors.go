package browser

// Superset SQL Lab selectors. They follow the Ant Design markup of Superset 2.x/3.x.
const (
	SelUsername = "#username"
	SelPassword = "#password"
	SelSignIn   = `input[type="submit"][value="Sign In"]`

	SelAddTab    = "button.ant-tabs-nav-add"
	SelActiveTab = ".ant-tabs-tab.ant-tabs-tab-active:has(button.ant-tabs-tab-remove)"
	SelCloseTab  = "button.ant-tabs-tab-remove"

	SelEditor   = "#ace-editor"
	AceEditorID = "ace-editor"

	SelLimitTrigger = "a.ant-dropdown-trigger"
	SelLimitItem    = "li.ant-dropdown-menu-item"

	SelRunButton  = "button.superset-button.cta"
	RunButtonText = "/run/i"
)
