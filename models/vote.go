package models

// Vote represents a user's upvote on an issue. The document id is derived from the
// (issue, user) pair so a second vote by the same user collides instead of duplicating.
type Vote struct {
	ID        string `bson:"_id" json:"id"`
	Issue     string `bson:"issue" json:"issue"`
	User      string `bson:"user" json:"user"`
	CreatedAt int64  `bson:"createdAt" json:"createdAt"`
}

// VoteID returns the document id of user's vote on issue.
func VoteID(issueID, userID string) string {
	return issueID + ":" + userID
}
