package models

// Identity is the authenticated caller: a party id and the side it acts on.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the caller may act on any chat.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may see or act on chat.
func (i Identity) CanAccess(chat Chat) bool {
	return i.IsAdmin() || chat.HasParticipant(i.ID, i.Role)
}
