// Package models defines state management structures for RobotChat flows.
package models

import "time"

// WizardSession is the state of one contact-form conversation.
type WizardSession struct {
	ID            string            `json:"id"`
	Step          int               `json:"step"`                     // index into the configured field list
	CollectedData map[string]string `json:"collected_data,omitempty"` // field name -> accepted value
	History       []Message         `json:"history,omitempty"`
	ClientIP      string            `json:"client_ip,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"` // last transition, drives idle expiry
}

// NewWizardSession creates a session positioned at the first field.
func NewWizardSession(id, clientIP string, now time.Time) *WizardSession {
	return &WizardSession{
		ID:            id,
		Step:          0,
		CollectedData: make(map[string]string),
		ClientIP:      clientIP,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of the session.
func (s *WizardSession) Clone() *WizardSession {
	if s == nil {
		return nil
	}
	c := *s
	c.CollectedData = make(map[string]string, len(s.CollectedData))
	for k, v := range s.CollectedData {
		c.CollectedData[k] = v
	}
	c.History = append([]Message(nil), s.History...)
	return &c
}

// IdleSince reports how long the session has been idle at now.
func (s *WizardSession) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}

// SubmissionRecord is the durable artifact stored when a contact form completes.
type SubmissionRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data"`
	ClientIP  string            `json:"ip,omitempty"`
}

// Validate checks that the record carries a data map. An empty map is a valid submission.
func (r *SubmissionRecord) Validate() error {
	if r.Data == nil {
		return ErrEmptySubmissionRecord
	}
	return nil
}
