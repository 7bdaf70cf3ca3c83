package models

import "time"

// AlertKind is the severity shown for an alert.
type AlertKind string

const (
	AlertDanger  AlertKind = "danger"
	AlertWarning AlertKind = "warning"
	AlertInfo    AlertKind = "info"
	AlertSuccess AlertKind = "success"
)

// Alert is a weather alert. ID is stable for a given (type, target date).
type Alert struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Kind       AlertKind `json:"kind"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TargetDate string    `json:"targetDate"`
	Timestamp  time.Time `json:"timestamp"`
	Location   string    `json:"location"`
	Icon       string    `json:"icon"`
	Dismissed  bool      `json:"dismissed"`
}
