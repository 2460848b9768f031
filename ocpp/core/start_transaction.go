package core

import "evcs/types"

const StartTransactionFeatureName = "StartTransaction"

type StartTransactionRequest struct {
	ConnectorId   int             `json:"connectorId"`
	IdTag         string          `json:"idTag"`
	MeterStart    int             `json:"meterStart"`
	ReservationId *int            `json:"reservationId,omitempty"`
	Timestamp     *types.DateTime `json:"timestamp,omitempty"`
}

type StartTransactionResponse struct {
	IdTagInfo     *types.IdTagInfo `json:"idTagInfo"`
	TransactionId *string          `json:"transactionId"`
}

func (req StartTransactionRequest) GetFeatureName() string {
	return StartTransactionFeatureName
}

func (req StartTransactionRequest) RequiredFields() []string {
	return []string{"connectorId", "idTag", "meterStart"}
}

func (res StartTransactionResponse) GetFeatureName() string {
	return StartTransactionFeatureName
}

// NewStartTransactionResponse pass an empty transactionId to send null on the wire
func NewStartTransactionResponse(idTagInfo *types.IdTagInfo, transactionId string) *StartTransactionResponse {
	response := &StartTransactionResponse{IdTagInfo: idTagInfo}
	if transactionId != "" {
		response.TransactionId = &transactionId
	}
	return response
}
