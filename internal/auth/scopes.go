package auth

// Known OAuth scopes used by the dashboard backend.
const (
	ScopeDealsRead  = "deals:read"
	ScopeDealsWrite = "deals:write"
	ScopeDealsAdmin = "deals:admin"
	ScopeTasksRead  = "tasks:read"
	ScopeTasksWrite = "tasks:write"
)
