package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/biz/repo"
)

// Mock implementations

type sentMessage struct {
	channelID string
	text      string
}

type mockChatRepo struct {
	selfID  string
	sendErr error
	sent    []sentMessage
	mu      sync.Mutex
}

func (m *mockChatRepo) SelfID() string {
	return m.selfID
}

func (m *mockChatRepo) SendText(ctx context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, text: text})
	return nil
}

type mockGeneratorRepo struct {
	reply string
	err   error
	calls []*repo.GenerateRequest
	mu    sync.Mutex
}

func (m *mockGeneratorRepo) Generate(ctx context.Context, req *repo.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockJournalRepo struct {
	records []*domain.ReplyRecord
	mu      sync.Mutex
}

func (m *mockJournalRepo) Append(ctx context.Context, rec *domain.ReplyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockJournalRepo) Recent(ctx context.Context, limit int) ([]*domain.ReplyRecord, error) {
	return m.records, nil
}

func (m *mockJournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockJournalRepo) Close() error {
	return nil
}

// fakeClock advances only when the usecase sleeps
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	onWait func()
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.onWait != nil {
		c.onWait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

const testChannel = "1234567890"
const botID = "999"

func testConfig() ReplyConfig {
	return ReplyConfig{
		Bot: domain.BotConfig{
			ChannelID:   testChannel,
			ReplyDelay:  30 * time.Second,
			SettleDelay: 3 * time.Second,
		},
		Model: "gemini-2.5-flash",
	}
}

func newTestUsecase(chat *mockChatRepo, gen *mockGeneratorRepo, journal repo.JournalRepo, clock *fakeClock) *ReplyUsecase {
	cfg := testConfig()
	uc := NewReplyUsecase(domain.NewReplyGate(cfg.Bot.ReplyDelay), chat, gen, journal, cfg)
	uc.now = clock.Now
	uc.sleep = clock.Sleep
	return uc
}

func userMessage(text string, at time.Time) *domain.IncomingMessage {
	return &domain.IncomingMessage{
		ID:         "m-1",
		ChannelID:  testChannel,
		AuthorID:   "42",
		AuthorName: "alice",
		Text:       text,
		ReceivedAt: at,
	}
}

// Tests

func TestHandle_FirstMessageReplies(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "hey there! what are you up to?"}
	journal := &mockJournalRepo{}
	uc := newTestUsecase(chat, gen, journal, clock)

	outcome := uc.Handle(context.Background(), userMessage("hi", clock.Now()))

	if outcome != domain.OutcomeReplied {
		t.Fatalf("Expected outcome %s, got %s", domain.OutcomeReplied, outcome)
	}
	if len(clock.slept) != 1 || clock.slept[0] != 3*time.Second {
		t.Errorf("Expected a single 3s settle delay, got %v", clock.slept)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("Expected 1 generation call, got %d", len(gen.calls))
	}
	call := gen.calls[0]
	if call.Input != "hi" {
		t.Errorf("Expected input 'hi', got '%s'", call.Input)
	}
	if call.SystemInstruction != DefaultSystemInstruction {
		t.Errorf("Expected the default persona instruction, got '%s'", call.SystemInstruction)
	}
	if call.Model != "gemini-2.5-flash" {
		t.Errorf("Expected model gemini-2.5-flash, got '%s'", call.Model)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("Expected 1 sent message, got %d", len(chat.sent))
	}
	if chat.sent[0].channelID != testChannel || chat.sent[0].text != gen.reply {
		t.Errorf("Expected reply relayed verbatim to %s, got %+v", testChannel, chat.sent[0])
	}
	if got := uc.Gate().LastReply(); !got.Equal(time.Unix(13, 0)) {
		t.Errorf("Expected last reply at t=13, got %v", got)
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != domain.OutcomeReplied {
		t.Errorf("Expected one journaled reply, got %+v", journal.records)
	}
}

func TestHandle_ThrottledWithinDelay(t *testing.T) {
	clock := &fakeClock{now: time.Unix(110, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "unused"}
	journal := &mockJournalRepo{}
	uc := newTestUsecase(chat, gen, journal, clock)
	uc.Gate().RecordReply(time.Unix(100, 0))

	outcome := uc.Handle(context.Background(), userMessage("hello?", clock.Now()))

	if outcome != domain.OutcomeThrottled {
		t.Fatalf("Expected outcome %s, got %s", domain.OutcomeThrottled, outcome)
	}
	if len(gen.calls) != 0 {
		t.Errorf("Expected no generation call, got %d", len(gen.calls))
	}
	if len(clock.slept) != 0 {
		t.Errorf("Expected no settle delay, got %v", clock.slept)
	}
	if got := uc.Gate().LastReply(); !got.Equal(time.Unix(100, 0)) {
		t.Errorf("Expected last reply to stay at t=100, got %v", got)
	}
	if len(journal.records) != 0 {
		t.Errorf("Expected nothing journaled for a throttled message, got %d", len(journal.records))
	}
}

func TestHandle_GenerationFailureLeavesGate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(500, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{err: errors.New("quota exceeded")}
	journal := &mockJournalRepo{}
	uc := newTestUsecase(chat, gen, journal, clock)
	uc.Gate().RecordReply(time.Unix(100, 0))

	outcome := uc.Handle(context.Background(), userMessage("anyone here?", clock.Now()))

	if outcome != domain.OutcomeGenerateFailed {
		t.Fatalf("Expected outcome %s, got %s", domain.OutcomeGenerateFailed, outcome)
	}
	if len(chat.sent) != 0 {
		t.Errorf("Expected nothing sent, got %d messages", len(chat.sent))
	}
	if got := uc.Gate().LastReply(); !got.Equal(time.Unix(100, 0)) {
		t.Errorf("Expected last reply unchanged at t=100, got %v", got)
	}
	if uc.Gate().InFlight() {
		t.Error("Expected reservation to be released after a failure")
	}
	if len(journal.records) != 1 || journal.records[0].Error == "" {
		t.Errorf("Expected the failure to be journaled with its error, got %+v", journal.records)
	}

	// The next message is still eligible
	gen.err = nil
	gen.reply = "back online"
	if outcome := uc.Handle(context.Background(), userMessage("retry", clock.Now())); outcome != domain.OutcomeReplied {
		t.Errorf("Expected next message to be answered, got %s", outcome)
	}
}

func TestHandle_SendFailureLeavesGate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID, sendErr: errors.New("missing permissions")}
	gen := &mockGeneratorRepo{reply: "hello!"}
	uc := newTestUsecase(chat, gen, nil, clock)

	outcome := uc.Handle(context.Background(), userMessage("hi", clock.Now()))

	if outcome != domain.OutcomeSendFailed {
		t.Fatalf("Expected outcome %s, got %s", domain.OutcomeSendFailed, outcome)
	}
	if !uc.Gate().LastReply().IsZero() {
		t.Errorf("Expected gate to stay in the never-replied state, got %v", uc.Gate().LastReply())
	}
	if uc.Gate().InFlight() {
		t.Error("Expected reservation to be released after a send failure")
	}
}

func TestHandle_IgnoresSelfMessages(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "echo"}
	uc := newTestUsecase(chat, gen, nil, clock)

	msg := userMessage("my own words", clock.Now())
	msg.AuthorID = botID

	if outcome := uc.Handle(context.Background(), msg); outcome != domain.OutcomeIgnoredSelf {
		t.Errorf("Expected outcome %s, got %s", domain.OutcomeIgnoredSelf, outcome)
	}
	if len(gen.calls) != 0 || len(chat.sent) != 0 {
		t.Error("Expected no generation or send for the bot's own message")
	}
}

func TestHandle_IgnoresOtherChannels(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "nope"}
	uc := newTestUsecase(chat, gen, nil, clock)

	msg := userMessage("hi", clock.Now())
	msg.ChannelID = "111"

	if outcome := uc.Handle(context.Background(), msg); outcome != domain.OutcomeIgnoredChannel {
		t.Errorf("Expected outcome %s, got %s", domain.OutcomeIgnoredChannel, outcome)
	}
	if len(gen.calls) != 0 || len(chat.sent) != 0 {
		t.Error("Expected no generation or send for another channel")
	}
}

func TestHandle_BusyWhileReplyInFlight(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "first"}
	uc := newTestUsecase(chat, gen, nil, clock)

	var second domain.Outcome
	clock.onWait = func() {
		// A second message arrives while the first one is settling
		clock.onWait = nil
		second = uc.Handle(context.Background(), userMessage("me too", clock.Now()))
	}

	first := uc.Handle(context.Background(), userMessage("first!", clock.Now()))

	if first != domain.OutcomeReplied {
		t.Errorf("Expected first message to be answered, got %s", first)
	}
	if second != domain.OutcomeBusy {
		t.Errorf("Expected second message to be skipped as busy, got %s", second)
	}
	if len(chat.sent) != 1 {
		t.Errorf("Expected exactly one reply, got %d", len(chat.sent))
	}
}

func TestHandle_CanceledDuringSettle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "late"}
	journal := &mockJournalRepo{}
	uc := newTestUsecase(chat, gen, journal, clock)

	ctx, cancel := context.WithCancel(context.Background())
	clock.onWait = cancel

	var stages []Stage
	outcome := uc.HandleWithProgress(ctx, userMessage("hi", clock.Now()), func(s Stage) {
		stages = append(stages, s)
	})

	if outcome != domain.OutcomeCanceled {
		t.Fatalf("Expected outcome %s, got %s", domain.OutcomeCanceled, outcome)
	}
	if len(gen.calls) != 0 {
		t.Errorf("Expected no generation call, got %d", len(gen.calls))
	}
	if len(stages) != 1 || stages[0] != StageSettling {
		t.Errorf("Expected only the settling stage, got %v", stages)
	}
	if uc.Gate().InFlight() || !uc.Gate().LastReply().IsZero() {
		t.Error("Expected gate untouched after cancellation")
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != domain.OutcomeCanceled {
		t.Errorf("Expected the cancellation to be journaled, got %+v", journal.records)
	}
}

func TestHandle_ReportsStages(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &mockGeneratorRepo{reply: "ok"}
	uc := newTestUsecase(chat, gen, nil, clock)

	var stages []Stage
	uc.HandleWithProgress(context.Background(), userMessage("hi", clock.Now()), func(s Stage) {
		stages = append(stages, s)
	})

	want := []Stage{StageSettling, StageGenerating, StageSending}
	if len(stages) != len(want) {
		t.Fatalf("Expected stages %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}
}

func TestHandle_GenerateTimeoutApplied(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	chat := &mockChatRepo{selfID: botID}
	gen := &deadlineGenerator{}
	cfg := testConfig()
	cfg.GenerateTimeout = 5 * time.Second
	uc := NewReplyUsecase(domain.NewReplyGate(cfg.Bot.ReplyDelay), chat, gen, nil, cfg)
	uc.now = clock.Now
	uc.sleep = clock.Sleep

	uc.Handle(context.Background(), userMessage("hi", clock.Now()))

	if !gen.hadDeadline {
		t.Error("Expected the generation call to carry a deadline")
	}
}

type deadlineGenerator struct {
	hadDeadline bool
}

func (g *deadlineGenerator) Generate(ctx context.Context, req *repo.GenerateRequest) (string, error) {
	_, g.hadDeadline = ctx.Deadline()
	return "ok", nil
}

func TestNewReplyUsecase_Defaults(t *testing.T) {
	uc := NewReplyUsecase(domain.NewReplyGate(0), &mockChatRepo{}, &mockGeneratorRepo{}, nil, ReplyConfig{})

	if uc.Config().SystemInstruction != DefaultSystemInstruction {
		t.Errorf("Expected default system instruction, got '%s'", uc.Config().SystemInstruction)
	}
	if uc.Config().GenerateTimeout != DefaultGenerateTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultGenerateTimeout, uc.Config().GenerateTimeout)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("Expected zero sleep to succeed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
