package models

// Actor is an authenticated caller as resolved by the actor directory
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
