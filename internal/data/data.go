package data

import (
	"github.com/devricklin/discord-relay/internal/biz/repo"
	"github.com/devricklin/discord-relay/internal/infra/discord"
	"github.com/devricklin/discord-relay/internal/infra/gemini"
)

// Repositories contains all repositories
type Repositories struct {
	Chat      repo.ChatRepo
	Generator repo.GeneratorRepo
	Journal   repo.JournalRepo // nil when journaling is disabled
}

// NewRepositories creates all repositories
// An empty journalPath disables the reply journal
func NewRepositories(
	discordClient *discord.Client,
	geminiClient *gemini.Client,
	journalPath string,
) (*Repositories, error) {
	repos := &Repositories{
		Chat:      NewDiscordRepo(discordClient),
		Generator: NewGeminiRepo(geminiClient),
	}

	if journalPath != "" {
		journal, err := NewJournalRepo(journalPath)
		if err != nil {
			return nil, err
		}
		repos.Journal = journal
	}

	return repos, nil
}

// Close releases repository resources
func (r *Repositories) Close() error {
	if r.Journal != nil {
		return r.Journal.Close()
	}
	return nil
}
