package core

import "evcs/types"

const RemoteStartTransactionFeatureName = "RemoteStartTransaction"

type RemoteStartTransactionRequest struct {
	ConnectorId   *int   `json:"connectorId,omitempty"`
	IdTag         string `json:"idTag"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status types.RemoteStartStopStatus `json:"status"`
}

func (r RemoteStartTransactionRequest) GetFeatureName() string {
	return RemoteStartTransactionFeatureName
}

func (r RemoteStartTransactionResponse) GetFeatureName() string {
	return RemoteStartTransactionFeatureName
}

func NewRemoteStartTransactionRequest(connectorId int, idTag string, reservationId *int) *RemoteStartTransactionRequest {
	return &RemoteStartTransactionRequest{ConnectorId: &connectorId, IdTag: idTag, ReservationId: reservationId}
}
