package model

// Note is a private annotation one user keeps about another. Notes are
// directional: A's notes about B are unrelated to B's notes about A.
//
// Timestamps are Unix milliseconds, the format the mobile client expects.
type Note struct {
	ID        string `json:"noteId"`
	FromID    string `json:"-"`
	ToID      string `json:"-"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// PhoneLookup is the result of matching a contact list against registered
// phone numbers.
type PhoneLookup struct {
	InNetwork  []string `json:"inNetwork"`
	OutNetwork []string `json:"outNetwork"`
	Failed     []string `json:"failed"`
}
