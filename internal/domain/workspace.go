package domain

import "github.com/shopspring/decimal"

// Workspace represents a Toggl workspace in the domain layer.
type Workspace struct {
	ID                int64
	DefaultHourlyRate decimal.Decimal
}
