package models

// PredictJSONRequest is the JSON variant of the predict request
type PredictJSONRequest struct {
	Image    string `json:"image" binding:"required"`
	Filename string `json:"filename,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Type    string `json:"type,omitempty"`
}

// PredictResponse is returned by /api/predict
type PredictResponse struct {
	Success     bool         `json:"success"`
	Backend     string       `json:"backend"`
	Prediction  Prediction   `json:"prediction"`
	Predictions []Prediction `json:"predictions"`
}

// QuoteResponse is returned by /api/quote
type QuoteResponse struct {
	PredictResponse
	DisplayLabel string    `json:"display_label"`
	Packages     []Package `json:"packages"`
}

// PackagesResponse is returned by /api/packages
type PackagesResponse struct {
	Label    string    `json:"label,omitempty"`
	Packages []Package `json:"packages"`
}
