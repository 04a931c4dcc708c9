// Package domain holds the payload types shared by the host signup pipeline,
// its hook runtime and the plugins that filter admission results.
package domain

import "strings"

// AdmissionDecision is the host's verdict on a registration attempt.
// An empty ErrorMessage means no message.
type AdmissionDecision struct {
	Allowed      bool   `json:"allowed"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Allow is the decision for an attempt nothing objected to.
func Allow() AdmissionDecision {
	return AdmissionDecision{Allowed: true}
}

// Deny builds a denial carrying a user-facing message.
func Deny(message string) AdmissionDecision {
	return AdmissionDecision{Allowed: false, ErrorMessage: message}
}

// RegistrationAttempt is built per signup request and never persisted.
// Empty strings mean the value was not supplied.
type RegistrationAttempt struct {
	SubmittedToken string
	RemoteIP       string
	UserAgent      string
}

// HasToken reports whether a non-blank challenge token was submitted.
func (a RegistrationAttempt) HasToken() bool {
	return strings.TrimSpace(a.SubmittedToken) != ""
}

// Token returns the submitted token without surrounding whitespace.
func (a RegistrationAttempt) Token() string {
	return strings.TrimSpace(a.SubmittedToken)
}
