// Package client defines the vision-model boundary shared by the ollama and
// llama.cpp backends.
package client

import (
	"context"
)

// VisionClient sends a prompt with one image and returns the model's reply
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// JSONQuery is SimpleQuery with the reply constrained to JSON where the
	// backend supports it.
	JSONQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
