package mpesa

import "strconv"

// formatMetadataNumber renders an integral metadata number without an exponent.
func formatMetadataNumber(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}

// tokenResponse is the gateway's credential-exchange response.
// ExpiresIn is delivered as a string of seconds.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushRequest is the push-submission payload with the gateway's field names.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous push-submission response.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryRequest is the status-query payload. The password must be derived
// with a fresh timestamp, not the one used at push time.
type STKQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse is the status-query response. ResultCode is only present
// once the transaction has resolved on the gateway side.
type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// gatewayError is the gateway's error body shape, shared by all endpoints.
type gatewayError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CallbackEnvelope is the asynchronous webhook payload delivered by the gateway.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the terminal outcome of a push request.
type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is the name/value list attached to successful callbacks.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one name/value pair. Value may be a string or a number.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// ItemValue returns the value of the named metadata item, or nil when absent.
func (m *CallbackMetadata) ItemValue(name string) any {
	if m == nil {
		return nil
	}
	for _, it := range m.Item {
		if it.Name == name {
			return it.Value
		}
	}
	return nil
}

// StringItem returns the named metadata item rendered as a string.
func (m *CallbackMetadata) StringItem(name string) string {
	switch v := m.ItemValue(name).(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; metadata numbers are integral
		return formatMetadataNumber(v)
	default:
		return ""
	}
}

// Int64Item returns the named metadata item rendered as an integer amount.
func (m *CallbackMetadata) Int64Item(name string) int64 {
	switch v := m.ItemValue(name).(type) {
	case float64:
		return int64(v)
	default:
		return 0
	}
}
