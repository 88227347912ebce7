package domain

// Identity is the authenticated requester handed to the engine by the
// transport layer. The zero value means no one is authenticated.
type Identity struct {
	UserID      string
	DisplayName string
	IsAdmin     bool
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}
