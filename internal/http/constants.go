package httpx

// Page names map to templates under views/pages.
const (
	PageHome           = "home"
	PageMyProfile      = "my_profile"
	PageMyPayStubs     = "my_paystubs"
	PageHRDashboard    = "hr_dashboard"
	PageAdminDashboard = "admin_dashboard"
	PageEmployeeEdit   = "employee_edit"
	PagePending        = "pending"
	PageAccessDenied   = "access_denied"
	PageProfileError   = "profile_error"
	PageError          = "error"
	PageSignedOut      = "signed_out"
)

// pendingRefreshSeconds is how soon a pending page reloads itself.
const pendingRefreshSeconds = 2

// viewPages maps guarded views to the page that renders them.
//
//nolint:gochecknoglobals // static read-only lookup
var viewPages = map[View]string{
	ViewHome:           PageHome,
	ViewMyProfile:      PageMyProfile,
	ViewMyPayStubs:     PageMyPayStubs,
	ViewHRDashboard:    PageHRDashboard,
	ViewAdminDashboard: PageAdminDashboard,
}

// PageFor returns the page that renders v, or "" when v has none.
func PageFor(v View) string { return viewPages[v] }
