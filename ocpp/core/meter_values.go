package core

import "evcs/types"

const MeterValuesFeatureName = "MeterValues"

type MeterValuesRequest struct {
	ConnectorId   int                `json:"connectorId"`
	TransactionId *string            `json:"transactionId,omitempty"`
	MeterValue    []types.MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct {
}

func (r MeterValuesRequest) GetFeatureName() string {
	return MeterValuesFeatureName
}

func (r MeterValuesRequest) RequiredFields() []string {
	return []string{"connectorId", "meterValue"}
}

func (c MeterValuesResponse) GetFeatureName() string {
	return MeterValuesFeatureName
}

func NewMeterValuesResponse() *MeterValuesResponse {
	return &MeterValuesResponse{}
}
