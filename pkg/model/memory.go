package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// PlatformTag marks every stored record with the target platform
const PlatformTag = "xiaohongshu"

type MemoryID string

// NewMemoryID generates a new unique MemoryID. The timestamp prefix keeps
// snapshot files roughly chronological when inspected by hand.
func NewMemoryID() MemoryID {
	suffix := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return MemoryID(fmt.Sprintf("mem_%d_%s", time.Now().UnixMilli(), suffix))
}

// MemoryRecord is a stored piece of generated content with its embedding.
// Score is request-scoped: retrieval operations set it to the match score of
// the current query; the persisted value carries no meaning.
type MemoryRecord struct {
	ID        MemoryID  `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float64 `json:"embedding"`
	Score     float64   `json:"score,omitempty"`
}

// Metadata holds the recognized record fields plus any caller-supplied
// extension fields, which round-trip verbatim through the snapshot file.
type Metadata struct {
	Timestamp    time.Time
	UpdatedAt    *time.Time
	Keywords     []string
	Framework    string
	QualityScore float64
	Platform     string
	Extra        map[string]any
}

// LastTouched returns the effective recency timestamp of the record
func (m *Metadata) LastTouched() time.Time {
	if m.UpdatedAt != nil {
		return *m.UpdatedAt
	}
	return m.Timestamp
}

var knownMetadataKeys = map[string]bool{
	"timestamp":    true,
	"updatedAt":    true,
	"keywords":     true,
	"framework":    true,
	"qualityScore": true,
	"platform":     true,
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+6)
	for k, v := range m.Extra {
		if !knownMetadataKeys[k] {
			out[k] = v
		}
	}

	out["timestamp"] = m.Timestamp.Format(time.RFC3339)
	if m.UpdatedAt != nil {
		out["updatedAt"] = m.UpdatedAt.Format(time.RFC3339)
	}
	keywords := m.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	out["keywords"] = keywords
	out["framework"] = m.Framework
	out["qualityScore"] = m.QualityScore
	out["platform"] = m.Platform

	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to unmarshal metadata")
	}

	for key, val := range raw {
		switch key {
		case "timestamp":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				if ts, err := time.Parse(time.RFC3339, s); err == nil {
					m.Timestamp = ts
				}
			}
		case "updatedAt":
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				if ts, err := time.Parse(time.RFC3339, s); err == nil {
					m.UpdatedAt = &ts
				}
			}
		case "keywords":
			if err := json.Unmarshal(val, &m.Keywords); err != nil {
				return goerr.Wrap(err, "invalid keywords field")
			}
		case "framework":
			if err := json.Unmarshal(val, &m.Framework); err != nil {
				return goerr.Wrap(err, "invalid framework field")
			}
		case "qualityScore":
			if err := json.Unmarshal(val, &m.QualityScore); err != nil {
				return goerr.Wrap(err, "invalid qualityScore field")
			}
		case "platform":
			if err := json.Unmarshal(val, &m.Platform); err != nil {
				return goerr.Wrap(err, "invalid platform field")
			}
		default:
			var v any
			if err := json.Unmarshal(val, &v); err != nil {
				return goerr.Wrap(err, "invalid metadata field", goerr.V("key", key))
			}
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = v
		}
	}

	return nil
}

// Apply merges caller-supplied values over the metadata. Recognized keys are
// mapped onto the typed fields, everything else goes into Extra.
func (m *Metadata) Apply(values map[string]any) {
	for key, val := range values {
		switch key {
		case "timestamp":
			if ts, ok := parseTimeValue(val); ok {
				m.Timestamp = ts
			}
		case "updatedAt":
			if ts, ok := parseTimeValue(val); ok {
				m.UpdatedAt = &ts
			}
		case "keywords":
			m.Keywords = toStringSlice(val)
		case "framework":
			if s, ok := val.(string); ok {
				m.Framework = s
			}
		case "qualityScore":
			if f, ok := toFloat(val); ok {
				m.QualityScore = f
			}
		case "platform":
			if s, ok := val.(string); ok {
				m.Platform = s
			}
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = val
		}
	}
}

func parseTimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}

// MemoryStats summarizes the live record set
type MemoryStats struct {
	TotalMemories   int            `json:"totalMemories"`
	AvgQualityScore float64        `json:"avgQualityScore"`
	Frameworks      map[string]int `json:"frameworks"`
	RecentCount     int            `json:"recentCount"`
}
