package entity

// Course is the slice of the course record the chat needs: who may join
// groups scoped to it.
type Course struct {
	ID       string   `json:"id" firestore:"id"`
	Code     string   `json:"code" firestore:"code"`
	Title    string   `json:"title" firestore:"title"`
	OwnerID  string   `json:"ownerId" firestore:"ownerId"`
	Students []string `json:"students" firestore:"students"`
}

func (c *Course) IsOwner(userID string) bool {
	return c.OwnerID == userID
}

func (c *Course) IsEnrolled(userID string) bool {
	return contains(c.Students, userID)
}

// IsMember reports whether userID may be invited into a group of this course.
func (c *Course) IsMember(userID string) bool {
	return c.IsOwner(userID) || c.IsEnrolled(userID)
}

// Members is the owner followed by every enrolled student.
func (c *Course) Members() []string {
	out := make([]string, 0, len(c.Students)+1)
	if c.OwnerID != "" {
		out = append(out, c.OwnerID)
	}
	for _, s := range c.Students {
		if s != c.OwnerID {
			out = append(out, s)
		}
	}
	return out
}
