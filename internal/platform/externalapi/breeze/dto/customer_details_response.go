package dto

// CustomerDetailsResponse represents the JSON response from the
// customerdetails endpoint, used to validate the stored session token.
type CustomerDetailsResponse struct {
	Status int    `json:"Status"`
	Error  string `json:"Error,omitempty"`
	User   struct {
		SessionToken string `json:"session_token"`
		IDirectUser  string `json:"idirect_user_name"`
	} `json:"Success"`
}
