package entity

// User is an operator account. Password is only sent, the server never returns it.
type User struct {
	ID       string `json:"_id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Role     string `json:"role"`
}
