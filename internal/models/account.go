package models

// AccountRole comes from the identity provider's app_metadata.role claim.
type AccountRole string

const (
	RoleUser  AccountRole = "user"
	RoleAdmin AccountRole = "admin"
)
