package models

import "time"

// Prediction is the canonical classification result handed to the UI
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Image is one validated upload ready to be forwarded to a backend
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
	Width       int
	Height      int
}

// Package is one insurance offering of the catalog
type Package struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Coverage     []string `json:"coverage" yaml:"coverage"`
	MonthlyPrice float64  `json:"monthly_price" yaml:"monthly_price"`
	YearlyPrice  float64  `json:"yearly_price" yaml:"yearly_price"`
	BestFor      []string `json:"best_for" yaml:"best_for"`
	Icon         string   `json:"icon" yaml:"icon"`
}

// Classification is what the service returns for one accepted upload
type Classification struct {
	Backend     string
	Filename    string
	Top         Prediction
	Predictions []Prediction
	Elapsed     time.Duration
}
