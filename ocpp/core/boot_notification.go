package core

import "evcs/types"

const BootNotificationFeatureName = "BootNotification"

// RegistrationStatus Result of registration in response to a BootNotification request.
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

const DefaultHeartbeatInterval = 300

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResponse struct {
	CurrentTime *types.DateTime    `json:"currentTime"`
	Interval    int                `json:"interval"`
	Status      RegistrationStatus `json:"status"`
}

func (r BootNotificationRequest) GetFeatureName() string {
	return BootNotificationFeatureName
}

func (r BootNotificationRequest) RequiredFields() []string {
	return []string{"chargePointVendor", "chargePointModel"}
}

// SerialNumber prefers the charge point serial, falling back to the charge box serial
func (r BootNotificationRequest) SerialNumber() string {
	if r.ChargePointSerialNumber != "" {
		return r.ChargePointSerialNumber
	}
	return r.ChargeBoxSerialNumber
}

func (r BootNotificationResponse) GetFeatureName() string {
	return BootNotificationFeatureName
}

// NewBootNotificationResponse Creates a new BootNotificationResponse. There are no optional fields for this message.
func NewBootNotificationResponse(currentTime *types.DateTime, interval int, status RegistrationStatus) *BootNotificationResponse {
	return &BootNotificationResponse{CurrentTime: currentTime, Interval: interval, Status: status}
}
