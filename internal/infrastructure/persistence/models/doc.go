// Package models contains the GORM persistence models backing the audit
// trail. They are separate from the domain types so the domain layer stays
// free of ORM tags; complex fields travel as JSON text columns, which both
// sqlite and postgres accept.
package models
