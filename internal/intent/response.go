package intent

import "net/http"

// MessageInvalidStatus is returned when the processor reports a status this service does not handle.
const MessageInvalidStatus = "Invalid status"

// Response is the minimal contract the browser needs to continue a checkout.
type Response struct {
	Success        bool   `json:"success,omitempty"`
	RequiresAction bool   `json:"requires_action,omitempty"`
	ClientSecret   string `json:"payment_intent_client_secret,omitempty"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Message        string `json:"message,omitempty"`
}

// GeneratePaymentResponse reduces an intent to the browser contract and its HTTP status.
// Every status not listed here, including unknown ones, yields the generic 500 shape.
func GeneratePaymentResponse(in Intent) (Response, int) {
	switch in.Status {
	case StatusRequiresPaymentMethod:
		return Response{ClientSecret: in.ClientSecret}, http.StatusOK
	case StatusRequiresAction:
		resp := Response{RequiresAction: true, ClientSecret: in.ClientSecret}
		if in.NextAction != nil && in.NextAction.Type == NextActionRedirectToURL {
			resp.RedirectURL = in.NextAction.RedirectURL
		}
		return resp, http.StatusOK
	case StatusSucceeded:
		return Response{Success: true}, http.StatusOK
	default:
		return Response{Message: MessageInvalidStatus}, http.StatusInternalServerError
	}
}
