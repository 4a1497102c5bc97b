package models

import "time"

// Session is the per-user dashboard state. Pipeline stages take a Session and
// return a new one instead of mutating shared state.
type Session struct {
	UserID   int64                       `json:"-"`
	From     time.Time                   `json:"de"`
	To       time.Time                   `json:"ate"`
	Sources  []SourceType                `json:"fontes"`
	Uploads  map[SourceType]SourceResult `json:"-"`
	Results  []SourceResult              `json:"resultados"`
	Rows     []ConsolidatedRow           `json:"-"`
	Audit    *AuditReport                `json:"-"`
	LoadedAt time.Time                   `json:"carregado_em"`
}

// NewSession returns an empty session for userID.
func NewSession(userID int64) *Session {
	return &Session{
		UserID:  userID,
		Uploads: map[SourceType]SourceResult{},
	}
}

// Clone copies the session so the caller's value is never modified. Row slices
// are shared since nothing writes to them after a load.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Sources = append([]SourceType(nil), s.Sources...)
	c.Results = append([]SourceResult(nil), s.Results...)
	c.Uploads = make(map[SourceType]SourceResult, len(s.Uploads))
	for k, v := range s.Uploads {
		c.Uploads[k] = v
	}
	return &c
}
