package data

import (
	"context"

	"github.com/devricklin/discord-relay/internal/biz/repo"
	"github.com/devricklin/discord-relay/internal/infra/gemini"
)

// geminiRepo implements the generator repository
type geminiRepo struct {
	client *gemini.Client
}

// NewGeminiRepo creates a Gemini repository
func NewGeminiRepo(client *gemini.Client) repo.GeneratorRepo {
	return &geminiRepo{client: client}
}

// Generate produces a reply for the request
func (r *geminiRepo) Generate(ctx context.Context, req *repo.GenerateRequest) (string, error) {
	return r.client.Generate(ctx, req.Model, req.SystemInstruction, req.Input)
}
