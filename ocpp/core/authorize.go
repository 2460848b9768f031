package core

import "evcs/types"

const AuthorizeFeatureName = "Authorize"

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo *types.IdTagInfo `json:"idTagInfo"`
}

func (r AuthorizeRequest) GetFeatureName() string {
	return AuthorizeFeatureName
}

func (r AuthorizeRequest) RequiredFields() []string {
	return []string{"idTag"}
}

func (c AuthorizeResponse) GetFeatureName() string {
	return AuthorizeFeatureName
}

func NewAuthorizationResponse(idTagInfo *types.IdTagInfo) *AuthorizeResponse {
	return &AuthorizeResponse{IdTagInfo: idTagInfo}
}
