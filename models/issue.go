package models

import (
	"time"
)

// IssueCategory enum
type IssueCategory string

const (
	Road        IssueCategory = "road"
	Water       IssueCategory = "water"
	Electricity IssueCategory = "electricity"
	Sanitation  IssueCategory = "sanitation"
	Other       IssueCategory = "other"
)

// Categories lists every category in display order.
var Categories = []IssueCategory{Road, Water, Electricity, Sanitation, Other}

// Valid reports whether c is one of the known categories.
func (c IssueCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// IssueStatus enum
type IssueStatus string

const (
	Pending    IssueStatus = "pending"
	Approved   IssueStatus = "approved"
	InProgress IssueStatus = "in_progress"
	Resolved   IssueStatus = "resolved"
	Rejected   IssueStatus = "rejected"
)

// Statuses lists every lifecycle status in workflow order.
var Statuses = []IssueStatus{Pending, Approved, InProgress, Resolved, Rejected}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	MinIssueImages = 1
	MaxIssueImages = 5
)

// Issue represents a civic issue reported by a user.
// Timestamps are epoch milliseconds so documents stay readable by existing clients.
type Issue struct {
	ID          string        `bson:"_id,omitempty" json:"id"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	Category    IssueCategory `bson:"category" json:"category"`
	Location    string        `bson:"location" json:"location"`
	Latitude    *float64      `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude   *float64      `bson:"longitude,omitempty" json:"longitude,omitempty"`
	ImageURLs   []string      `bson:"imageUrl" json:"imageUrl"`
	ReporterID  string        `bson:"reporterId" json:"reporterId"`
	Status      IssueStatus   `bson:"status" json:"status"`
	Timestamp   int64         `bson:"timestamp" json:"timestamp"`
	LastUpdated int64         `bson:"lastUpdated" json:"lastUpdated"`
	Upvotes     int           `bson:"upvotes" json:"upvotes"`
}

// CreatedAt returns the creation time.
func (i *Issue) CreatedAt() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// HasCoordinates reports whether the issue carries a geocoded position.
func (i *Issue) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// Millis converts t to the epoch-millisecond form used in stored documents.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Issue field names as persisted in the document store.
const (
	FieldIssueTitle       = "title"
	FieldIssueCategory    = "category"
	FieldIssueStatus      = "status"
	FieldIssueReporterID  = "reporterId"
	FieldIssueUpvotes     = "upvotes"
	FieldIssueLastUpdated = "lastUpdated"
)
