package model

import (
	"time"

	"github.com/google/uuid"
)

// Impact is the severity tier of a finding, driving review prioritization.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactHigh     Impact = "high"
	ImpactMedium   Impact = "medium"
	ImpactLow      Impact = "low"
)

// Rank orders impacts from low (0) to critical (3). Unknown impacts rank
// below low so a malformed value never outranks a real one.
func (i Impact) Rank() int {
	switch i {
	case ImpactCritical:
		return 3
	case ImpactHigh:
		return 2
	case ImpactMedium:
		return 1
	case ImpactLow:
		return 0
	default:
		return -1
	}
}

// AtLeast reports whether i is as severe as other.
func (i Impact) AtLeast(other Impact) bool {
	return i.Rank() >= other.Rank()
}

// FindingStatus is the human-resolution state of a finding.
type FindingStatus string

const (
	FindingPending     FindingStatus = "pending"
	FindingAccepted    FindingStatus = "accepted"
	FindingRejected    FindingStatus = "rejected"
	FindingRevised     FindingStatus = "revised"
	FindingAutoApplied FindingStatus = "auto_applied"
)

// CountsTowardRisk reports whether a finding in this status participates in
// matter risk scoring. Rejected and revised findings are excluded.
func (s FindingStatus) CountsTowardRisk() bool {
	switch s {
	case FindingPending, FindingAccepted, FindingAutoApplied:
		return true
	default:
		return false
	}
}

// RawFinding is one extraction candidate as returned by the model, before
// deduplication and impact classification.
type RawFinding struct {
	CategoryKey string  `json:"categoryKey"`
	FieldKey    string  `json:"fieldKey"`
	Value       string  `json:"value"`
	SourceQuote string  `json:"sourceQuote"`
	Confidence  float64 `json:"confidence"`
	ChunkIndex  int     `json:"-"`
}

// Finding is one persisted extracted data point, owned by a pipeline run
// and a matter.
type Finding struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.UUID     `json:"tenantId"`
	MatterID    uuid.UUID     `json:"matterId"`
	RunID       uuid.UUID     `json:"runId"`
	CategoryKey string        `json:"categoryKey"`
	FieldKey    string        `json:"fieldKey"`
	Label       string        `json:"label"`
	Value       string        `json:"value"`
	SourceQuote string        `json:"sourceQuote,omitempty"`
	Confidence  float64       `json:"confidence"`
	Impact      Impact        `json:"impact"`
	Status      FindingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
}

// CorrectionScope bounds how widely a human override applies.
type CorrectionScope string

const (
	ScopeInstance CorrectionScope = "instance"
	ScopeMatter   CorrectionScope = "matter"
	ScopeFirm     CorrectionScope = "firm"
)

// ValidCorrectionScope reports whether s is a known scope value.
func ValidCorrectionScope(s CorrectionScope) bool {
	switch s {
	case ScopeInstance, ScopeMatter, ScopeFirm:
		return true
	default:
		return false
	}
}

// EntityCorrection records a human override of an extracted value. It is a
// reconciliation signal for future runs at the recorded scope.
type EntityCorrection struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenantId"`
	FindingID      uuid.UUID       `json:"findingId"`
	FieldKey       string          `json:"fieldKey"`
	OriginalValue  string          `json:"originalValue"`
	CorrectedValue string          `json:"correctedValue"`
	Scope          CorrectionScope `json:"scope"`
	CreatedBy      *uuid.UUID      `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
