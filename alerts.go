package modhooks

import "slices"

// AlertType classifies a user-facing result message.
type AlertType string

const (
	AlertSuccess AlertType = "success"
	AlertError   AlertType = "error"
	AlertWarning AlertType = "warning"
	AlertInfo    AlertType = "info"
)

// Alert is a user-facing result produced while handling a request.
type Alert struct {
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

// alertLog is the request-scoped list of alerts a plugin instance accumulates.
type alertLog struct {
	alerts []Alert
}

func (l *alertLog) add(t AlertType, msg string) {
	l.alerts = append(l.alerts, Alert{Type: t, Message: msg})
}

func (l *alertLog) list() []Alert {
	return slices.Clone(l.alerts)
}

func (l *alertLog) take() []Alert {
	out := l.alerts
	l.alerts = nil
	return out
}
