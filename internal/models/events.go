package models

// PublishEventResponse carries the id the lifecycle event was published with.
type PublishEventResponse struct {
	ID string `json:"id"`
}
