package errorlistener

import (
	"fmt"

	"evcs/internal"
	"evcs/metrics/counters"
)

const (
	featureName = "ErrorListener"
	noError     = "NoError"
)

// ErrorListener counts the vendor error codes reported in status notifications
type ErrorListener struct {
	log internal.LogHandler
}

func NewErrorListener(log internal.LogHandler) *ErrorListener {
	return &ErrorListener{log: log}
}

// OnStatusNotification expects the charge point error code in event.Info
func (e *ErrorListener) OnStatusNotification(event *internal.EventMessage) {
	if !IsError(event.Info) {
		return
	}
	counters.ObserveError(event.ChargePointId, event.Info)
	e.log.FeatureEvent(featureName, event.ChargePointId, fmt.Sprintf("connector #%d reported %s, status %s", event.ConnectorId, event.Info, event.Status))
}

func (e *ErrorListener) OnTransactionStart(_ *internal.EventMessage) {}

func (e *ErrorListener) OnTransactionStop(_ *internal.EventMessage) {}

func (e *ErrorListener) OnAuthorize(_ *internal.EventMessage) {}

func IsError(code string) bool {
	return code != "" && code != noError
}
