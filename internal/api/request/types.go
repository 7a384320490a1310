package request

// CreatePlayerRequest is the request body for adding a player
type CreatePlayerRequest struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// DisablePlayerRequest is the request body for disabling a player
type DisablePlayerRequest struct {
	Reason string `json:"reason"`
}

// PlayTime is one weekly window; day is ISO (1 = Monday … 7 = Sunday)
type PlayTime struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}
