package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/biz/repo"
	"github.com/devricklin/discord-relay/internal/telemetry"
)

// DefaultSystemInstruction is the persona sent with every generation call
const DefaultSystemInstruction = "You are a friendly and highly active Discord user. Your response should be concise, natural, and always encourage conversation to assist with leveling."

// DefaultGenerateTimeout bounds a single generation call
const DefaultGenerateTimeout = 30 * time.Second

// ReplyConfig represents reply usecase configuration
type ReplyConfig struct {
	Bot               domain.BotConfig
	Model             string
	SystemInstruction string
	GenerateTimeout   time.Duration
}

// Stage is the step a reply is currently in
type Stage int

const (
	StageSettling Stage = iota + 1
	StageGenerating
	StageSending
)

func (s Stage) String() string {
	switch s {
	case StageSettling:
		return "settling"
	case StageGenerating:
		return "generating"
	case StageSending:
		return "sending"
	}
	return "unknown"
}

// ReplyUsecase decides whether a message gets an auto-reply and produces it
type ReplyUsecase struct {
	gate     *domain.ReplyGate
	chatRepo repo.ChatRepo
	genRepo  repo.GeneratorRepo
	journal  repo.JournalRepo // optional
	config   ReplyConfig
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewReplyUsecase creates a new reply usecase
func NewReplyUsecase(
	gate *domain.ReplyGate,
	chatRepo repo.ChatRepo,
	genRepo repo.GeneratorRepo,
	journal repo.JournalRepo,
	config ReplyConfig,
) *ReplyUsecase {
	if config.SystemInstruction == "" {
		config.SystemInstruction = DefaultSystemInstruction
	}
	if config.GenerateTimeout <= 0 {
		config.GenerateTimeout = DefaultGenerateTimeout
	}
	return &ReplyUsecase{
		gate:     gate,
		chatRepo: chatRepo,
		genRepo:  genRepo,
		journal:  journal,
		config:   config,
		logger:   slog.With("component", "reply"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Gate returns the reply gate
func (uc *ReplyUsecase) Gate() *domain.ReplyGate {
	return uc.gate
}

// Config returns the reply configuration
func (uc *ReplyUsecase) Config() ReplyConfig {
	return uc.config
}

// BotUserID returns the connected bot identity, empty before the gateway is ready
func (uc *ReplyUsecase) BotUserID() string {
	return uc.chatRepo.SelfID()
}

// Now returns the usecase clock reading
func (uc *ReplyUsecase) Now() time.Time {
	return uc.now()
}

// Eligible applies the origin filter: the bot never answers itself and only
// answers in the configured channel.
func (uc *ReplyUsecase) Eligible(msg *domain.IncomingMessage) (domain.Outcome, bool) {
	if msg.IsFrom(uc.chatRepo.SelfID()) {
		return domain.OutcomeIgnoredSelf, false
	}
	if !msg.InChannel(uc.config.Bot.ChannelID) {
		return domain.OutcomeIgnoredChannel, false
	}
	return "", true
}

// Handle runs one message through filter, gate, settle, generate, send and record
func (uc *ReplyUsecase) Handle(ctx context.Context, msg *domain.IncomingMessage) domain.Outcome {
	return uc.HandleWithProgress(ctx, msg, nil)
}

// HandleWithProgress is Handle with a callback invoked on every stage change
// once the gate has been passed.
func (uc *ReplyUsecase) HandleWithProgress(ctx context.Context, msg *domain.IncomingMessage, progress func(Stage)) domain.Outcome {
	outcome := uc.handle(ctx, msg, progress)
	telemetry.ObserveOutcome(string(outcome))
	return outcome
}

func (uc *ReplyUsecase) handle(ctx context.Context, msg *domain.IncomingMessage, progress func(Stage)) domain.Outcome {
	log := telemetry.LoggerWithCorr(ctx, uc.logger)

	// 1. Filter
	if outcome, ok := uc.Eligible(msg); !ok {
		log.Debug("message ignored", "outcome", outcome, "channel", msg.ChannelID, "author", msg.AuthorID)
		return outcome
	}

	// 2. Gate check
	decision, reservation := uc.gate.Acquire(uc.now())
	if reservation == nil {
		if decision.InFlight {
			log.Info("reply already in flight, skipping message", "msg_id", msg.ID)
			return domain.OutcomeBusy
		}
		log.Info("waiting for reply delay", "remaining", fmt.Sprintf("%.2fs", decision.Remaining.Seconds()))
		return domain.OutcomeThrottled
	}
	telemetry.SetInFlight(true)
	defer telemetry.SetInFlight(false)
	// Commit makes this a no-op on the success path
	defer reservation.Release()

	rec := &domain.ReplyRecord{
		ID:         telemetry.GetCorrelation(ctx),
		MessageID:  msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Prompt:     msg.Text,
		ReceivedAt: msg.ReceivedAt,
	}

	// 3. Settle delay
	report(progress, StageSettling)
	if err := uc.sleep(ctx, uc.config.Bot.SettleDelay); err != nil {
		log.Info("reply canceled during settle delay", "msg_id", msg.ID)
		return uc.finish(ctx, rec, domain.OutcomeCanceled, err)
	}

	// 4. Generate
	report(progress, StageGenerating)
	if err := ctx.Err(); err != nil {
		log.Info("reply canceled before generation", "msg_id", msg.ID)
		return uc.finish(ctx, rec, domain.OutcomeCanceled, err)
	}
	log.Info("received", "author", authorLabel(msg), "text", msg.Text)

	reply, err := uc.generate(ctx, msg.Text)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("reply canceled during generation", "msg_id", msg.ID)
			return uc.finish(ctx, rec, domain.OutcomeCanceled, err)
		}
		log.Error("generation backend error", "err", err)
		return uc.finish(ctx, rec, domain.OutcomeGenerateFailed, err)
	}
	rec.Reply = reply

	// 5. Send
	report(progress, StageSending)
	if err := uc.send(ctx, msg.ChannelID, reply); err != nil {
		log.Error("failed to send reply", "channel", msg.ChannelID, "err", err)
		return uc.finish(ctx, rec, domain.OutcomeSendFailed, err)
	}

	// 6. Record
	sentAt := uc.now()
	reservation.Commit(sentAt)
	telemetry.SetLastReply(sentAt)
	log.Info("reply sent", "chars", len(reply), "next_reply_in", uc.config.Bot.ReplyDelay.String())

	return uc.finish(ctx, rec, domain.OutcomeReplied, nil)
}

func (uc *ReplyUsecase) generate(ctx context.Context, input string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "reply.generate", attribute.String("model", uc.config.Model))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, uc.config.GenerateTimeout)
	defer cancel()

	var (
		reply string
		err   error
	)
	telemetry.TimeFunc(telemetry.GenerateDuration, func() {
		reply, err = uc.genRepo.Generate(ctx, &repo.GenerateRequest{
			Model:             uc.config.Model,
			Input:             input,
			SystemInstruction: uc.config.SystemInstruction,
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("generate reply: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return reply, nil
}

func (uc *ReplyUsecase) send(ctx context.Context, channelID, text string) error {
	ctx, span := telemetry.StartSpan(ctx, "reply.send", attribute.String("channel_id", channelID))
	defer span.End()

	var err error
	telemetry.TimeFunc(telemetry.SendDuration, func() {
		err = uc.chatRepo.SendText(ctx, channelID, text)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("send reply: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// finish journals an attempted reply and returns its outcome
func (uc *ReplyUsecase) finish(ctx context.Context, rec *domain.ReplyRecord, outcome domain.Outcome, cause error) domain.Outcome {
	if uc.journal == nil {
		return outcome
	}

	rec.Outcome = outcome
	rec.CompletedAt = uc.now()
	if cause != nil {
		rec.Error = cause.Error()
	}

	// The handling context may already be canceled; the journal write should still land
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.journal.Append(jctx, rec); err != nil {
		uc.logger.Warn("failed to journal reply", "msg_id", rec.MessageID, "err", err)
	}
	return outcome
}

func report(progress func(Stage), s Stage) {
	if progress != nil {
		progress(s)
	}
}

func authorLabel(msg *domain.IncomingMessage) string {
	if msg.AuthorName != "" {
		return msg.AuthorName
	}
	return msg.AuthorID
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
