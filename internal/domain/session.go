package domain

// SessionRecord is the currently open Connect chat session for one
// sender on one channel. At most one record per (customer id, channel)
// is live at a time; the contact id is the table's primary key so the
// stale record can be deleted by session id during renewal.
type SessionRecord struct {
	ContactID        string
	CustomerID       string
	Channel          string
	ParticipantToken string
	ConnectionToken  string
	Name             string
	SystemNumber     string
	// ExpiresAt is the record's TTL as a Unix timestamp, derived from
	// the configured chat duration.
	ExpiresAt int64
}
