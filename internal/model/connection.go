package model

// Edge is one side of a pending request or an accepted connection, as seen
// from the owner of the list: the other user and the profile slot attached to
// the edge.
type Edge struct {
	UserID   string `json:"tagferId"`
	ProfileN int    `json:"profileN"`
}

// PendingRequests is the owner's pending edges, split by direction.
type PendingRequests struct {
	Received []Edge
	Sent     []Edge
}

// RequestList is the API view of PendingRequests: received first, then sent.
type RequestList struct {
	Received []LiteProfile `json:"received"`
	Sent     []LiteProfile `json:"sent"`
}

// ConnectionList buckets accepted connections by the slot stored on each edge.
type ConnectionList struct {
	Profile1 []LiteProfile `json:"profile1"`
	Profile2 []LiteProfile `json:"profile2"`
	Profile3 []LiteProfile `json:"profile3"`
	Profile4 []LiteProfile `json:"profile4"`
}

// Bucket returns the list for slot n, or nil when n is out of range.
func (c *ConnectionList) Bucket(n int) *[]LiteProfile {
	switch n {
	case 1:
		return &c.Profile1
	case 2:
		return &c.Profile2
	case 3:
		return &c.Profile3
	case 4:
		return &c.Profile4
	}
	return nil
}
