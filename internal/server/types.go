// Package server provides the HTTP front door of the media generation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// GenerateRequest is the HTTP request body for a generation request.
type GenerateRequest struct {
	// Prompt is the natural-language description of the media.
	Prompt string `json:"prompt" validate:"required,max=4000"`
	// Kind is "image" or "video". Required unless ServiceID is set.
	Kind string `json:"kind" validate:"omitempty,oneof=image video"`
	// ServiceID selects a registered generation service.
	ServiceID string `json:"serviceId" validate:"omitempty,max=128"`
	// TaskID correlates progress events; generated when empty.
	TaskID string `json:"taskId" validate:"omitempty,max=128,printascii"`

	AspectRatio    string `json:"aspectRatio" validate:"omitempty,max=16"`
	Duration       int    `json:"duration" validate:"omitempty,min=1,max=120"`
	Resolution     string `json:"resolution" validate:"omitempty,max=16"`
	NumImages      int    `json:"numImages" validate:"omitempty,min=1,max=8"`
	ImageSize      string `json:"imageSize" validate:"omitempty,max=32"`
	Seed           *int64 `json:"seed"`
	NegativePrompt string `json:"negativePrompt" validate:"omitempty,max=2000"`

	// Extra is passed to the submit tool unchanged.
	Extra map[string]any `json:"extra"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// ErrorCategory classifies failed generations.
	ErrorCategory string `json:"errorCategory,omitempty"`
	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`
}

// TaskResponse describes an in-flight task.
type TaskResponse struct {
	TaskID    string    `json:"taskId"`
	State     string    `json:"state"`
	Kind      string    `json:"kind"`
	ServiceID string    `json:"serviceId"`
	Attempt   int       `json:"attempt"`
	RequestID string    `json:"requestId,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskListResponse lists the in-flight tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// CancelResponse is returned after a cancellation request was accepted.
type CancelResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Services is the number of registered generation services.
	Services int `json:"services"`
	// InFlight is the number of running jobs.
	InFlight int `json:"inFlight"`
}
