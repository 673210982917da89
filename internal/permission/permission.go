package permission

// Role is the coarse account role stored on the user record and embedded
// in session tokens.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

// Capability names a single permitted action. Route guards check these,
// never roles, so the authorization surface lives in one table.
type Capability string

const (
	CreatePost              Capability = "create_post"
	EditOwnPost             Capability = "edit_own_post"
	SubmitPost              Capability = "submit_post"
	ReviewPost              Capability = "review_post"
	AcceptRejectSubmissions Capability = "accept_reject_submissions"
	ApproveDesigns          Capability = "approve_designs"
	PublishPost             Capability = "publish_post"
	PublishEdition          Capability = "publish_edition"
	ManageUsers             Capability = "manage_users"
	ViewReports             Capability = "view_reports"
)

// grants is the whole authorization model. Flat: no inheritance, no
// implicit admin superset. Admin's set is spelled out in full.
var grants = map[Role][]Capability{
	RoleStudent: {
		CreatePost,
		EditOwnPost,
		SubmitPost,
	},
	RoleProfessor: {
		CreatePost,
		EditOwnPost,
		SubmitPost,
		ReviewPost,
		ViewReports,
	},
	RoleEditor: {
		CreatePost,
		EditOwnPost,
		SubmitPost,
		ReviewPost,
		AcceptRejectSubmissions,
		PublishPost,
	},
	RoleAdmin: {
		CreatePost,
		EditOwnPost,
		SubmitPost,
		ReviewPost,
		AcceptRejectSubmissions,
		ApproveDesigns,
		PublishPost,
		PublishEdition,
		ManageUsers,
		ViewReports,
	},
}

var table = func() map[Role]map[Capability]struct{} {
	t := make(map[Role]map[Capability]struct{}, len(grants))
	for role, caps := range grants {
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		t[role] = set
	}
	return t
}()

// Has reports whether the role holds the capability. Unknown roles hold
// nothing.
func Has(role Role, cap Capability) bool {
	_, ok := table[role][cap]
	return ok
}

// HasAny reports whether the role holds at least one of the capabilities.
func HasAny(role Role, caps ...Capability) bool {
	for _, c := range caps {
		if Has(role, c) {
			return true
		}
	}
	return false
}

// Known reports whether the role appears in the grant table.
func Known(role Role) bool {
	_, ok := table[role]
	return ok
}
