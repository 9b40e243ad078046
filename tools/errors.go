package tools

import "errors"

var (
	// ErrToolNotFound is returned when the model calls an unknown tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidArguments is returned when tool arguments fail to parse or validate.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUnknownAPI is returned for an unregistered llm_hass_api value.
	ErrUnknownAPI = errors.New("unknown tool API")
)
