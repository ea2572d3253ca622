package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// ChatTextRequest is the request body for chat/text.
type ChatTextRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

// IdentityRequest is the request body for session/identity.
type IdentityRequest struct {
	Platform  string `json:"platform" validate:"required,oneof=spotify soundcloud"`
	AccountID int64  `json:"account_id" validate:"omitempty,gte=0"`
}

// IntroRequest is the request body for session/intro.
type IntroRequest struct {
	Seen bool `json:"seen"`
}

// WidgetVolumeResultRequest is the request body for
// widget/volume-result, the page's answer to a widget/get-volume
// command.
type WidgetVolumeResultRequest struct {
	ID     string `json:"id" validate:"required,max=64"`
	Volume int    `json:"volume" validate:"gte=0,lte=100"`
}

// PlatformRequest is the request body for platform/login and
// platform/status.
type PlatformRequest struct {
	Platform  string `json:"platform" validate:"required,oneof=spotify soundcloud"`
	AccountID int64  `json:"account_id" validate:"omitempty,gte=0"`
}
