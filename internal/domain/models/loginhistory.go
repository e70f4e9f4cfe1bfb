// internal/domain/models/loginhistory.go
package models

import "time"

// LoginHistory captures a single completed login.
// CreatedAt is indexed for recent-activity views.
type LoginHistory struct {
	PrincipalID string    `bson:"principal_id"`
	LoginID     string    `bson:"login_id"` // negotiation record id
	Username    string    `bson:"username"`
	CreatedAt   time.Time `bson:"created_at"`
	IP          string    `bson:"ip"`
	Schemes     []string  `bson:"schemes"` // factors validated for this login
}
