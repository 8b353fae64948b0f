package domain

import "github.com/shopspring/decimal"

// Project represents a Toggl project in the domain layer.
// Rate is nil when the project does not override the workspace rate.
type Project struct {
	ID     int64
	Rate   *decimal.Decimal
	Client Client
}
