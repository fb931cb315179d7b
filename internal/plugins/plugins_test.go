package plugins

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/continuation"
	"wavebot/internal/dispatch"
	"wavebot/internal/event"
	"wavebot/internal/message"
	"wavebot/internal/permission"
	"wavebot/internal/storage"
	"wavebot/internal/transport"
)

const (
	botJID   = "999@s.whatsapp.net"
	adminJID = "100@s.whatsapp.net"
	userJID  = "200@s.whatsapp.net"
	chatJID  = "c1@s.whatsapp.net"
)

// harness wires the full pipeline with the built-in plugins installed.
type harness struct {
	tr    *transport.Memory
	store *storage.Storage
	d     *dispatch.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "threads.json"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	commands := command.NewRegistry()
	events := event.NewRegistry()
	if err := Install(commands, events); err != nil {
		t.Fatalf("Install: %v", err)
	}

	tr := transport.NewMemory()
	d := dispatch.New(tr, store,
		permission.NewResolver([]string{"100"}, false, nil),
		commands, command.NewCooldownLedger(), events,
		continuation.NewRegistry("reply", time.Minute),
		continuation.NewRegistry("reaction", time.Minute),
		dispatch.Options{Prefix: "!", BotID: botJID})

	return &harness{tr: tr, store: store, d: d}
}

func (h *harness) text(sender, id, body string) *message.Normalized {
	return &message.Normalized{
		Key:         transport.MessageKey{ChatID: chatJID, ID: id, Participant: sender},
		ChatID:      chatJID,
		SenderID:    sender,
		Kind:        message.ChatPrivate,
		ContentKind: "conversation",
		Body:        body,
		Timestamp:   time.Now(),
	}
}

func (h *harness) react(sender, id, emoji, target string) *message.Normalized {
	m := h.text(sender, id, "")
	m.ContentKind = "reactionMessage"
	m.Reaction = &message.Reaction{Emoji: emoji, TargetMessageID: target}
	return m
}

func (h *harness) reply(sender, id, body, target string) *message.Normalized {
	m := h.text(sender, id, body)
	m.Quote = &message.Quote{MessageID: target, SenderID: botJID}
	return m
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	last := h.tr.LastSent()
	if last == nil {
		t.Fatal("nothing was sent")
	}
	return last.Content.Text
}

func TestInstallRegistersCommands(t *testing.T) {
	commands := command.NewRegistry()
	events := event.NewRegistry()
	if err := Install(commands, events); err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, name := range []string{"ping", "help", "prefix", "poll", "purge"} {
		if _, ok := commands.Resolve(name); !ok {
			t.Errorf("command %q not installed", name)
		}
	}
	if events.Len() == 0 {
		t.Error("no listeners installed")
	}
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "!ping"))
	if got := h.lastText(t); !strings.Contains(got, "Pong") {
		t.Errorf("reply = %q", got)
	}
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "!help"))
	got := h.lastText(t)
	for _, want := range []string{"!ping", "!poll", "!prefix"} {
		if !strings.Contains(got, want) {
			t.Errorf("help output missing %q:\n%s", want, got)
		}
	}
}

func TestPrefixShow(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "!prefix"))
	if got := h.lastText(t); !strings.Contains(got, "!") {
		t.Errorf("reply = %q", got)
	}
}

func TestPrefixShowWithChatOverride(t *testing.T) {
	h := newHarness(t)
	if err := h.store.SetThreadPrefix(chatJID, "#"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "#prefix"))

	got := h.lastText(t)
	if !strings.Contains(got, "System prefix: !") {
		t.Errorf("system line must show the bot-wide prefix, got %q", got)
	}
	if !strings.Contains(got, "chat prefix: #") {
		t.Errorf("chat line must show the override, got %q", got)
	}
}

func TestPrefixShowWithGlobalOverride(t *testing.T) {
	h := newHarness(t)
	if err := h.store.SetGlobalPrefix("$"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := h.store.SetThreadPrefix(chatJID, "#"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "#prefix"))

	got := h.lastText(t)
	if !strings.Contains(got, "System prefix: $") {
		t.Errorf("system line must show the stored global override, got %q", got)
	}
}

func TestPrefixChangeConfirmedByReaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Dispatch(ctx, h.text(userJID, "M1", "!prefix #"))
	confirm := h.tr.LastSent()
	if confirm == nil || !strings.Contains(confirm.Content.Text, "👍") {
		t.Fatalf("expected a confirmation request, got %+v", confirm)
	}
	if _, ok := h.store.ThreadPrefix(chatJID); ok {
		t.Fatal("nothing may be persisted before confirmation")
	}

	h.d.Dispatch(ctx, h.react(userJID, "M2", "👍", confirm.Key.ID))
	got, ok := h.store.ThreadPrefix(chatJID)
	if !ok || got != "#" {
		t.Fatalf("ThreadPrefix = %q, %v", got, ok)
	}

	// The new prefix is live for the next command.
	h.d.Dispatch(ctx, h.text(userJID, "M5", "#ping"))
	if gotText := h.lastText(t); !strings.Contains(gotText, "Pong") {
		t.Errorf("new prefix inactive, reply = %q", gotText)
	}
}

func TestPrefixConfirmationInitiatorOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Dispatch(ctx, h.text(userJID, "M1", "!prefix #"))
	confirm := h.tr.LastSent()

	// A matching reaction from someone else claims the entry but applies
	// nothing.
	h.d.Dispatch(ctx, h.react(adminJID, "M2", "👍", confirm.Key.ID))
	if _, ok := h.store.ThreadPrefix(chatJID); ok {
		t.Fatal("only the initiator may confirm")
	}
}

func TestPrefixWrongReactionNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Dispatch(ctx, h.text(userJID, "M1", "!prefix #"))
	confirm := h.tr.LastSent()

	h.d.Dispatch(ctx, h.react(userJID, "M2", "😂", confirm.Key.ID))
	if got := h.lastText(t); !strings.Contains(got, "👍") {
		t.Errorf("wrong-reaction notice = %q", got)
	}
	if _, ok := h.store.ThreadPrefix(chatJID); ok {
		t.Error("wrong reaction must not apply the change")
	}
}

func TestPrefixReset(t *testing.T) {
	h := newHarness(t)
	if err := h.store.SetThreadPrefix(chatJID, "#"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "#prefix reset"))
	if _, ok := h.store.ThreadPrefix(chatJID); ok {
		t.Error("override should be removed")
	}
}

func TestPrefixGlobalRequiresBotAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Dispatch(ctx, h.text(userJID, "M1", "!prefix $ -g"))
	if got := h.lastText(t); !strings.Contains(got, "bot admins") {
		t.Errorf("reply = %q", got)
	}
	if _, ok := h.store.GlobalPrefix(); ok {
		t.Error("non-admin must not change the global prefix")
	}

	h.d.Dispatch(ctx, h.text(adminJID, "M2", "!prefix $ -g"))
	confirm := h.tr.LastSent()
	h.d.Dispatch(ctx, h.react(adminJID, "M3", "👍", confirm.Key.ID))

	got, ok := h.store.GlobalPrefix()
	if !ok || got != "$" {
		t.Errorf("GlobalPrefix = %q, %v", got, ok)
	}
}

func TestPollVoteAndClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Dispatch(ctx, h.text(adminJID, "M1", "!poll ship it?"))
	pollMsg := h.tr.LastSent()
	if pollMsg == nil || !strings.Contains(pollMsg.Content.Text, "ship it?") {
		t.Fatalf("poll message = %+v", pollMsg)
	}

	vote := h.reply(userJID, "M2", "yes", pollMsg.Key.ID)
	vote.PushName = "Uta"
	h.d.Dispatch(ctx, vote)
	if got := h.lastText(t); !strings.Contains(got, "👍 Yes: 1 vote(s)") || !strings.Contains(got, "Uta") {
		t.Errorf("tally = %q", got)
	}

	// A second reply from the same voter replaces the earlier choice.
	revote := h.reply(userJID, "M3", "no", pollMsg.Key.ID)
	revote.PushName = "Uta"
	h.d.Dispatch(ctx, revote)
	got := h.lastText(t)
	if !strings.Contains(got, "👍 Yes: 0 vote(s)") || !strings.Contains(got, "👎 No: 1 vote(s)") {
		t.Errorf("tally after revote = %q", got)
	}

	// Only the creator can close.
	h.d.Dispatch(ctx, h.reply(userJID, "M4", "close", pollMsg.Key.ID))
	if got := h.lastText(t); strings.Contains(got, "closed") {
		t.Error("non-creator must not close the poll")
	}

	h.d.Dispatch(ctx, h.reply(adminJID, "M5", "close", pollMsg.Key.ID))
	if got := h.lastText(t); !strings.Contains(got, "Poll closed") {
		t.Errorf("close reply = %q", got)
	}

	// The continuation is gone: further replies fall through to the
	// command leg and, lacking a prefix, do nothing.
	before := len(h.tr.SentMessages())
	h.d.Dispatch(ctx, h.reply(userJID, "M6", "yes", pollMsg.Key.ID))
	if len(h.tr.SentMessages()) != before {
		t.Error("votes after close must be ignored")
	}
}

func TestPollRequiresQuestion(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(adminJID, "M1", "!poll"))
	if got := h.lastText(t); !strings.Contains(got, "question") {
		t.Errorf("reply = %q", got)
	}
}

func TestPollDeniedForRegularUser(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(userJID, "M1", "!poll q"))
	if got := h.lastText(t); !strings.Contains(got, "permission") {
		t.Errorf("reply = %q", got)
	}
}

func TestPurgeSendsDeleteFrame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m := h.text(adminJID, "M1", "!purge")
	m.Quote = &message.Quote{MessageID: "VICTIM", SenderID: userJID}
	// The quote targets a message nothing is waiting on, so the command leg
	// handles it.
	h.d.Dispatch(ctx, m)

	last := h.tr.LastSent()
	if last == nil || last.Content.Delete == nil {
		t.Fatalf("expected a delete frame, got %+v", last)
	}
	if last.Content.Delete.ID != "VICTIM" || last.Content.Delete.ChatID != chatJID {
		t.Errorf("delete key = %+v", last.Content.Delete)
	}
}

func TestPurgeWithoutQuote(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), h.text(adminJID, "M1", "!purge"))
	if got := h.lastText(t); !strings.Contains(got, "Quote") {
		t.Errorf("reply = %q", got)
	}
}
