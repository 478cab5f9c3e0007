package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/biz/usecase"
	"github.com/devricklin/discord-relay/internal/telemetry"
)

// ErrShuttingDown is returned by Dispatch after Shutdown has begun
var ErrShuttingDown = errors.New("relay is shutting down")

// RelayService runs every inbound message as its own cancellable reply task
type RelayService struct {
	replyUC   *usecase.ReplyUsecase
	supersede bool
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending *replyTask // task currently in its settle window
}

// replyTask is one message being handled
type replyTask struct {
	msgID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	stage usecase.Stage
}

func (t *replyTask) setStage(s usecase.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = s
}

// supersede cancels the task if it has not left the settle window yet
func (t *replyTask) supersede() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage != usecase.StageSettling {
		return false
	}
	t.cancel()
	return true
}

// NewRelayService creates a new relay service
// With supersede set, a newer eligible message cancels a reply that is still settling.
func NewRelayService(replyUC *usecase.ReplyUsecase, supersede bool) *RelayService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RelayService{
		replyUC:   replyUC,
		supersede: supersede,
		logger:    slog.With("component", "relay"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch handles msg in the background
func (s *RelayService) Dispatch(msg *domain.IncomingMessage) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.Handle(s.ctx, msg)
	}()
	return nil
}

// Handle runs one message to completion and returns its outcome
func (s *RelayService) Handle(ctx context.Context, msg *domain.IncomingMessage) domain.Outcome {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx, s.logger)

	if s.supersede {
		if _, ok := s.replyUC.Eligible(msg); ok {
			s.supersedePending(log, msg)
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	task := &replyTask{
		msgID:  msg.ID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	defer s.finish(task)

	outcome := s.replyUC.HandleWithProgress(taskCtx, msg, func(stage usecase.Stage) {
		task.setStage(stage)
		s.track(task, stage)
	})

	log.Debug("message handled", "msg_id", msg.ID, "outcome", outcome)
	return outcome
}

// supersedePending cancels a settling task and waits until it has released the gate
func (s *RelayService) supersedePending(log *slog.Logger, msg *domain.IncomingMessage) {
	s.mu.Lock()
	prev := s.pending
	s.mu.Unlock()

	if prev == nil || !prev.supersede() {
		return
	}
	log.Info("superseding pending reply", "old_msg_id", prev.msgID, "msg_id", msg.ID)
	<-prev.done
}

func (s *RelayService) track(task *replyTask, stage usecase.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage == usecase.StageSettling {
		s.pending = task
	} else if s.pending == task {
		s.pending = nil
	}
}

func (s *RelayService) finish(task *replyTask) {
	s.mu.Lock()
	if s.pending == task {
		s.pending = nil
	}
	s.mu.Unlock()
	close(task.done)
}

// Shutdown stops accepting messages, cancels running tasks and waits for them
func (s *RelayService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a point-in-time view of the relay
type Status struct {
	ChannelID      string    `json:"channel_id"`
	BotUserID      string    `json:"bot_user_id,omitempty"`
	ReplyDelay     float64   `json:"reply_delay_seconds"`
	SettleDelay    float64   `json:"settle_delay_seconds"`
	LastReply      time.Time `json:"last_reply,omitzero"`
	Remaining      float64   `json:"remaining_seconds"`
	InFlight       bool      `json:"in_flight"`
	Pending        string    `json:"pending_msg_id,omitempty"`
	Supersede      bool      `json:"supersede_pending"`
}

// Status reports the gate state as of now
func (s *RelayService) Status() Status {
	gate := s.replyUC.Gate()
	bot := s.replyUC.Config().Bot
	decision := gate.MayReply(s.replyUC.Now())

	st := Status{
		ChannelID:      bot.ChannelID,
		BotUserID:      s.replyUC.BotUserID(),
		ReplyDelay:     bot.ReplyDelay.Seconds(),
		SettleDelay:    bot.SettleDelay.Seconds(),
		LastReply:      gate.LastReply(),
		Remaining:      decision.Remaining.Seconds(),
		InFlight:       gate.InFlight(),
		Supersede:      s.supersede,
	}

	s.mu.Lock()
	if s.pending != nil {
		st.Pending = s.pending.msgID
	}
	s.mu.Unlock()

	return st
}
