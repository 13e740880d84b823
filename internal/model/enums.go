package model

type IssueCategory string

const (
	IssueCategorySemantic     IssueCategory = "semantic"
	IssueCategoryContrast     IssueCategory = "contrast"
	IssueCategoryKeyboard     IssueCategory = "keyboard"
	IssueCategoryScreenReader IssueCategory = "screenReader"
)

type IssueSeverity string

const (
	IssueSeverityCritical   IssueSeverity = "critical"
	IssueSeverityWarning    IssueSeverity = "warning"
	IssueSeveritySuggestion IssueSeverity = "suggestion"
)

// SessionBackend names the deployment-wide session storage variant.
type SessionBackend string

const (
	SessionBackendCookie   SessionBackend = "cookie"
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendRedis    SessionBackend = "redis"
	SessionBackendPostgres SessionBackend = "postgres"
)

// Stateful reports whether the backend keeps sessions server side.
func (b SessionBackend) Stateful() bool {
	return b == SessionBackendMemory || b == SessionBackendRedis || b == SessionBackendPostgres
}

func (b SessionBackend) Valid() bool {
	return b == SessionBackendCookie || b.Stateful()
}
