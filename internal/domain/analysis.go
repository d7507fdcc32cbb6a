package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AnalysisStatus represents the lifecycle state of an analysis request.
// A request is created as pending and transitions exactly once to completed or failed.
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// Decision is the per-keyword recommendation produced by the decision engine.
type Decision string

const (
	DecisionWrite Decision = "Write"
	DecisionSkip  Decision = "Skip"
	DecisionError Decision = "Error"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// URLMetrics is one authority metrics record as reported by the metrics provider.
// URL is the provider's own echo of the checked URL and may differ in
// normalization from the SERP-provided form.
type URLMetrics struct {
	URL             string  `json:"url"`
	DomainAuthority float64 `json:"domain_authority"`
	PageAuthority   float64 `json:"page_authority"`
	SpamScore       float64 `json:"spam_score"`
}

// RankedURL is one SERP entry merged with its authority metrics.
// Metrics are matched to SERP entries by exact URL string equality; when no
// metrics record matches, HasMetrics is false and the scores are zero.
type RankedURL struct {
	Position        int     `json:"position"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Snippet         string  `json:"snippet,omitempty"`
	DomainAuthority float64 `json:"domain_authority"`
	PageAuthority   float64 `json:"page_authority"`
	SpamScore       float64 `json:"spam_score"`
	HasMetrics      bool    `json:"has_metrics"`
}

// KeywordResult is the per-keyword outcome embedded in an analysis log.
// Decision is DecisionError iff no credential succeeded for the keyword.
type KeywordResult struct {
	Keyword           string                 `json:"keyword"`
	CredentialID      *string                `json:"credential_id"`
	Decision          Decision               `json:"decision"`
	Results           []RankedURL            `json:"results,omitempty"`
	AverageAuthority  float64                `json:"average_authority"`
	LowAuthorityCount int                    `json:"low_authority_count"`
	RelatedKeywords   []string               `json:"related_keywords,omitempty"`
	KnowledgePanel    map[string]interface{} `json:"knowledge_panel,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

// KeywordResultArray stores per-keyword results as a JSON column.
type KeywordResultArray []KeywordResult

// Value implements the driver.Valuer interface for database serialization.
func (a KeywordResultArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *KeywordResultArray) Scan(value interface{}) error {
	if value == nil {
		*a = KeywordResultArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan KeywordResultArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// AnalysisLog is the append-then-update-once audit row for one webhook request.
// It is created in pending state before any remote call and updated exactly once
// at batch completion; it is never re-opened afterwards.
type AnalysisLog struct {
	ID               string             `gorm:"type:text;primaryKey" json:"id"`
	UserID           string             `gorm:"type:text;not null;index:idx_analysis_logs_user" json:"user_id"`
	Keywords         StringArray        `gorm:"type:text;not null" json:"keywords"`
	Status           AnalysisStatus     `gorm:"type:text;index:idx_analysis_logs_status;default:pending" json:"status"`
	Results          KeywordResultArray `gorm:"type:text" json:"results,omitempty"`
	CredentialsUsed  StringArray        `gorm:"type:text" json:"credentials_used"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
	ErrorMessage     string             `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TableName returns the database table name for AnalysisLog.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (AnalysisLog) TableName() string {
	return "analysis_logs"
}
