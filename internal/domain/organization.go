package domain

import (
	"fmt"
	"time"
)

type Organization struct {
	ID       string    `json:"id"`
	Timezone string    `json:"timezone"`
	Modified time.Time `json:"modified"`
}

// Location loads the organization's IANA zone, falling back to fallback when
// the stored name is empty.
func (o *Organization) Location(fallback *time.Location) (*time.Location, error) {
	if o == nil || o.Timezone == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s timezone %q: %w", o.ID, o.Timezone, err)
	}
	return loc, nil
}
