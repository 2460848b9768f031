package core

import "evcs/types"

const RemoteStopTransactionFeatureName = "RemoteStopTransaction"

type RemoteStopTransactionRequest struct {
	TransactionId string `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status types.RemoteStartStopStatus `json:"status"`
}

func (r RemoteStopTransactionRequest) GetFeatureName() string {
	return RemoteStopTransactionFeatureName
}

func (c RemoteStopTransactionResponse) GetFeatureName() string {
	return RemoteStopTransactionFeatureName
}

func NewRemoteStopTransactionRequest(transactionId string) *RemoteStopTransactionRequest {
	return &RemoteStopTransactionRequest{TransactionId: transactionId}
}
