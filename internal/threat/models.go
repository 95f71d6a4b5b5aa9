package threat

import (
	"time"
)

// Severity is the ordered threat-importance level of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every recognized severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is one of the recognized severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns the position of s in the severity ordering, 0 for low.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Platform identifies the source a threat event was observed on.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformReddit    Platform = "reddit"
	PlatformInstagram Platform = "instagram"
	PlatformTelegram  Platform = "telegram"
	PlatformYouTube   Platform = "youtube"
	PlatformDarkWeb   Platform = "darkweb"
	PlatformNews      Platform = "news"
	PlatformUnknown   Platform = "unknown"
)

// Platforms lists every recognized platform.
var Platforms = []Platform{
	PlatformTwitter,
	PlatformReddit,
	PlatformInstagram,
	PlatformTelegram,
	PlatformYouTube,
	PlatformDarkWeb,
	PlatformNews,
	PlatformUnknown,
}

// Valid reports whether p is one of the recognized platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ThreatType categorizes what kind of threat an event describes.
type ThreatType string

const (
	ThreatTypeImpersonation  ThreatType = "impersonation"
	ThreatTypeMisinformation ThreatType = "misinformation"
	ThreatTypeDataLeak       ThreatType = "data_leak"
	ThreatTypeDeepfake       ThreatType = "deepfake"
	ThreatTypeCampaign       ThreatType = "campaign"
	ThreatTypeHarassment     ThreatType = "harassment"
	ThreatTypeFakeProfile    ThreatType = "fake_profile"
)

// ThreatTypes lists every recognized threat category.
var ThreatTypes = []ThreatType{
	ThreatTypeImpersonation,
	ThreatTypeMisinformation,
	ThreatTypeDataLeak,
	ThreatTypeDeepfake,
	ThreatTypeCampaign,
	ThreatTypeHarassment,
	ThreatTypeFakeProfile,
}

// Valid reports whether t is one of the recognized threat categories.
func (t ThreatType) Valid() bool {
	for _, known := range ThreatTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status tracks the triage state of a threat event.
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewing Status = "reviewing"
	StatusConfirmed Status = "confirmed"
	StatusDismissed Status = "dismissed"
	StatusResolved  Status = "resolved"
)

// Valid reports whether s is a recognized triage status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusReviewing, StatusConfirmed, StatusDismissed, StatusResolved:
		return true
	}
	return false
}

// Evidence holds optional structured annotations attached to an event.
// Annotations are additive and never retracted once recorded.
type Evidence struct {
	IsMisinformation bool              `json:"is_misinformation,omitempty"`
	IsImpersonation  bool              `json:"is_impersonation,omitempty"`
	ClusterID        string            `json:"cluster_id,omitempty"`
	Screenshot       string            `json:"screenshot,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// MaxContentLength bounds the free-text snippet stored for display.
const MaxContentLength = 2000

// Event is a single threat record tied to a monitored subject.
// Events are immutable once appended; only the triage status may change.
type Event struct {
	ID              string     `json:"id" gorm:"primaryKey;size:64"`
	VIPID           string     `json:"vip_id" gorm:"index;size:64"`
	VIPName         string     `json:"vip_name" gorm:"size:255"`
	Platform        Platform   `json:"platform" gorm:"index;size:32"`
	ThreatType      ThreatType `json:"threat_type" gorm:"size:32"`
	Severity        Severity   `json:"severity" gorm:"index;size:16"`
	ConfidenceScore float64    `json:"confidence_score"`
	Content         string     `json:"content" gorm:"size:2000"`
	SourceURL       string     `json:"source_url" gorm:"size:1024"`
	Status          Status     `json:"status" gorm:"size:16"`
	Evidence        *Evidence  `json:"evidence,omitempty" gorm:"serializer:json"`
	CreatedAt       time.Time  `json:"created_at" gorm:"index"`
	AnalyzedAt      *time.Time `json:"analyzed_at,omitempty"`
}

// Validate checks the event invariants enforced at ingestion.
func (e *Event) Validate() error {
	if e.VIPName == "" {
		return NewValidationError("vip_name", "required field is empty")
	}
	if !e.Platform.Valid() {
		return NewValidationError("platform", "unrecognized platform %q", e.Platform)
	}
	if !e.ThreatType.Valid() {
		return NewValidationError("threat_type", "unrecognized threat type %q", e.ThreatType)
	}
	if !e.Severity.Valid() {
		return NewValidationError("severity", "unrecognized severity %q", e.Severity)
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return NewValidationError("confidence_score", "must be within [0,1], got %v", e.ConfidenceScore)
	}
	if len(e.Content) > MaxContentLength {
		return NewValidationError("content", "exceeds %d characters", MaxContentLength)
	}
	if e.Status != "" && !e.Status.Valid() {
		return NewValidationError("status", "unrecognized status %q", e.Status)
	}
	return nil
}

// Day returns the UTC calendar day a boundary-exact timestamp belongs to.
// An event created exactly at midnight is attributed to the day it starts.
func (e *Event) Day() string {
	return e.CreatedAt.UTC().Format("2006-01-02")
}

// Before reports whether e sorts before other in the store's stable total
// order, which is (created_at, id) ascending. Reads expose the reverse of
// this order, newest first with ties broken by id descending.
func (e *Event) Before(other *Event) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.ID < other.ID
}

// VIPProfile describes a monitored subject.
type VIPProfile struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Name      string    `json:"name" gorm:"index;size:255"`
	Title     string    `json:"title" gorm:"size:255"`
	Platforms []string  `json:"platforms" gorm:"serializer:json"`
	Keywords  []string  `json:"keywords" gorm:"serializer:json"`
	RiskLevel string    `json:"risk_level" gorm:"size:16"`
	Status    string    `json:"status" gorm:"index;size:16"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats is the point-in-time dashboard summary.
type Stats struct {
	TotalVIPs           int64      `json:"total_vips"`
	ActiveMonitors      int        `json:"active_monitors"`
	ThreatsToday        int64      `json:"threats_today"`
	HighSeverityThreats int64      `json:"high_severity_threats"`
	PlatformsMonitored  int        `json:"platforms_monitored"`
	LastScan            *time.Time `json:"last_scan"`
}

// PlatformCount is one row of the threats-by-platform analytics response.
type PlatformCount struct {
	Platform Platform `json:"platform"`
	Count    int64    `json:"count"`
}

// SeverityCount is one row of the severity-distribution analytics response.
type SeverityCount struct {
	Severity Severity `json:"severity"`
	Count    int64    `json:"count"`
}

// TimelinePoint is one day bucket of the threat-timeline response.
type TimelinePoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
