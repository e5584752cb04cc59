package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringSlice is a custom type for storing string arrays in JSON
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return json.Unmarshal(asBytes(value), s)
}

// SubredditStats tracks one account's history in a single subreddit
type SubredditStats struct {
	Posts        int        `json:"posts"`
	Karma        int        `json:"karma"`
	LastActivity *time.Time `json:"last_activity"`
}

// SubredditActivity maps subreddit name to the account's history there
type SubredditActivity map[string]SubredditStats

func (a SubredditActivity) Value() (driver.Value, error) {
	if a == nil {
		a = SubredditActivity{}
	}
	return json.Marshal(a)
}

func (a *SubredditActivity) Scan(value interface{}) error {
	if value == nil {
		*a = SubredditActivity{}
		return nil
	}
	return json.Unmarshal(asBytes(value), a)
}

// OpportunityMeta holds structured post attributes captured at discovery time
type OpportunityMeta struct {
	IsSelf    bool   `json:"is_self"`
	FlairText string `json:"flair_text,omitempty"`
	Over18    bool   `json:"over_18"`
}

func (m OpportunityMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *OpportunityMeta) Scan(value interface{}) error {
	if value == nil {
		*m = OpportunityMeta{}
		return nil
	}
	return json.Unmarshal(asBytes(value), m)
}

// GenerationMeta records provider details for a generated piece of content
type GenerationMeta struct {
	Model            string  `json:"model,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
}

func (m GenerationMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *GenerationMeta) Scan(value interface{}) error {
	if value == nil {
		*m = GenerationMeta{}
		return nil
	}
	return json.Unmarshal(asBytes(value), m)
}

// QualityReport stores the quality gate verdict alongside the content row
type QualityReport struct {
	Score          float64  `json:"score"`
	BlockingIssues []string `json:"blocking_issues,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (r QualityReport) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *QualityReport) Scan(value interface{}) error {
	if value == nil {
		*r = QualityReport{}
		return nil
	}
	return json.Unmarshal(asBytes(value), r)
}

func asBytes(value interface{}) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
