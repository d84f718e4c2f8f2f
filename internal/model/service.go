package model

// Service is a row of the `services` catalog.  The queue only reads it
// to validate the service a ticket is requested for.
type Service struct {
	ID          uint64 `json:"id"`          // services.id
	Name        string `json:"name"`        // services.name
	Description string `json:"description"` // services.description
}
