package broker

import "encoding/json"

// CreateCheckRequest asks for a new check. DialCode is optional; when set,
// PhoneNumber is raw input and is normalized on the server.
type CreateCheckRequest struct {
	DialCode    string `json:"dial_code,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

// ExchangeRequest carries the code the device received over cellular data.
type ExchangeRequest struct {
	Code        string `json:"code"`
	AccessToken string `json:"access_token,omitempty"`
}

// CheckData is returned when a check is created.
type CheckData struct {
	CheckID     string `json:"check_id"`
	CheckURL    string `json:"check_url"`
	AccessToken string `json:"access_token"`
}

// ResultData is the exchange result.
type ResultData struct {
	Match       bool `json:"match"`
	NoSimChange bool `json:"no_sim_change"`
}

// Envelope wraps every successful broker response.
type Envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ErrorResponse is the body of every failed broker response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	// ProviderStatus is the upstream status when the provider answered.
	ProviderStatus int `json:"provider_status,omitempty"`
}

// CheckStatusEnvelope passes the provider's check representation through as is.
type CheckStatusEnvelope = Envelope[json.RawMessage]

const (
	messageSuccess      = "success"
	messageCheckFetched = "SubscriberCheck Successful"
	errInvalidRequest   = "invalid_request"
)
