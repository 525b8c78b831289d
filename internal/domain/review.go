package domain

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Statuses lists every lifecycle state in directory order.
var Statuses = []Status{StatusPending, StatusVerified, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Action string

const (
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionFeature   Action = "feature"
	ActionUnfeature Action = "unfeature"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionFeature, ActionUnfeature:
		return true
	}
	return false
}

// VerificationWindow is how long a submitter has to confirm their email.
const VerificationWindow = 7 * 24 * time.Hour

type Review struct {
	ID           string       `json:"id"`
	Status       Status       `json:"status"`
	Reviewer     Reviewer     `json:"reviewer"`
	Content      Content      `json:"content"`
	Metadata     Metadata     `json:"metadata"`
	Verification Verification `json:"verification"`
	AdminFields  AdminFields  `json:"adminFields"`
}

type Reviewer struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Organization *string `json:"organization,omitempty"`
	Role         *string `json:"role,omitempty"`
	Relationship string  `json:"relationship"`
	LinkedInURL  *string `json:"linkedinUrl,omitempty"`
	Verified     bool    `json:"verified"`
}

type Content struct {
	Rating         int      `json:"rating"`
	Testimonial    string   `json:"testimonial"`
	Recommendation bool     `json:"recommendation"`
	ProjectContext *string  `json:"projectContext,omitempty"`
	Skills         []string `json:"skills,omitempty"`
}

type Metadata struct {
	SubmittedAt time.Time  `json:"submittedAt"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	IPAddress   string     `json:"ipAddress,omitempty"`
	UserAgent   string     `json:"userAgent,omitempty"`
	Source      string     `json:"source"`
}

// Verification is persisted with the record but stripped from every API view.
type Verification struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AdminFields struct {
	ModeratorNotes  *string `json:"moderatorNotes,omitempty"`
	Featured        bool    `json:"featured"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
	ModeratedBy     *string `json:"moderatedBy,omitempty"`
}

// Expired reports whether the verification window has closed at now.
func (r Review) Expired(now time.Time) bool {
	exp := r.Verification.ExpiresAt
	if exp.IsZero() {
		exp = r.Metadata.SubmittedAt.Add(VerificationWindow)
	}
	return now.After(exp)
}

// Redacted returns a copy safe to hand to API callers.
func (r Review) Redacted() Review {
	r.Verification = Verification{}
	return r
}

// PublishedReview is one row of approved/index.json.
type PublishedReview struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Organization *string    `json:"organization,omitempty"`
	Role         *string    `json:"role,omitempty"`
	Relationship string     `json:"relationship"`
	Rating       int        `json:"rating"`
	Testimonial  string     `json:"testimonial"`
	Featured     bool       `json:"featured"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
}

type Stats struct {
	Pending       int       `json:"pending"`
	Verified      int       `json:"verified"`
	Approved      int       `json:"approved"`
	Rejected      int       `json:"rejected"`
	Total         int       `json:"total"`
	Featured      int       `json:"featured"`
	AverageRating float64   `json:"averageRating"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ActionState is the slice of a review an audit entry snapshots.
type ActionState struct {
	Status   Status `json:"status"`
	Featured bool   `json:"featured"`
}

// AdminActionLog is one JSON line of the moderation audit trail.
type AdminActionLog struct {
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
	Action    Action      `json:"action"`
	ReviewID  string      `json:"reviewId"`
	Admin     string      `json:"admin"`
	IPAddress string      `json:"ipAddress,omitempty"`
	UserAgent string      `json:"userAgent,omitempty"`
	Notes     *string     `json:"notes,omitempty"`
	Before    ActionState `json:"before"`
	After     ActionState `json:"after"`
}

// ValidID reports whether id is safe to use as a file name.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// Publish projects an approved review onto its public index row.
func Publish(r Review) PublishedReview {
	return PublishedReview{
		ID:           r.ID,
		Name:         r.Reviewer.Name,
		Organization: r.Reviewer.Organization,
		Role:         r.Reviewer.Role,
		Relationship: r.Reviewer.Relationship,
		Rating:       r.Content.Rating,
		Testimonial:  r.Content.Testimonial,
		Featured:     r.AdminFields.Featured,
		ApprovedAt:   r.Metadata.ApprovedAt,
	}
}

// Apply performs an admin action on r in place. It rejects actions the
// current status does not allow.
func (r *Review) Apply(a Action, now time.Time, by string, notes, reason *string) error {
	switch a {
	case ActionApprove:
		if r.Status != StatusVerified && r.Status != StatusRejected {
			return ErrInvalidTransition
		}
		r.Status = StatusApproved
		r.Metadata.ApprovedAt = &now
		r.Metadata.RejectedAt = nil
		r.AdminFields.RejectionReason = nil
	case ActionReject:
		if r.Status != StatusVerified && r.Status != StatusApproved {
			return ErrInvalidTransition
		}
		r.Status = StatusRejected
		r.Metadata.RejectedAt = &now
		r.AdminFields.Featured = false
		if reason == nil {
			reason = notes
		}
		r.AdminFields.RejectionReason = reason
	case ActionFeature, ActionUnfeature:
		if r.Status != StatusApproved {
			return ErrInvalidTransition
		}
		r.AdminFields.Featured = a == ActionFeature
	default:
		return NewError(CodeValidation, "unknown action "+string(a))
	}
	if notes != nil {
		r.AdminFields.ModeratorNotes = notes
	}
	if by != "" {
		r.AdminFields.ModeratedBy = &by
	}
	return nil
}

func (r Review) State() ActionState {
	return ActionState{Status: r.Status, Featured: r.AdminFields.Featured}
}
