package models

type OrganizationActionsResponse struct {
	OrganizationID string  `json:"organizationId"`
	Actions        []int64 `json:"actions"`
}

type SetTimezoneRequest struct {
	Timezone string `json:"timezone"`
}
