package repo

import "context"

// GenerateRequest represents one text-generation call
type GenerateRequest struct {
	Model             string // Empty uses the backend's configured model
	Input             string
	SystemInstruction string
}

// GeneratorRepo is the text-generation backend interface
type GeneratorRepo interface {
	// Generate returns the generated text for the request
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}
