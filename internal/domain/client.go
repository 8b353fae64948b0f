package domain

// Client represents a Toggl client (the customer a project is billed to).
type Client struct {
	ID       int64
	Name     string
	Archived bool
}
