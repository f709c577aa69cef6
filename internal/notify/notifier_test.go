package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubSender struct {
	name  string
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifyFiltersUnlistedEvents(t *testing.T) {
	t.Parallel()

	sender := &stubSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"position_stuck"}, discard)

	require.NoError(t, n.Notify(context.Background(), "position_closed", "t", "m"))
	assert.Zero(t, sender.calls)

	require.NoError(t, n.Notify(context.Background(), "position_stuck", "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	t.Parallel()

	sender := &stubSender{name: "discord"}
	n := NewNotifier([]Sender{sender}, nil, discard)

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	t.Parallel()

	failing := &stubSender{name: "telegram", err: errors.New("boom")}
	healthy := &stubSender{name: "discord"}
	n := NewNotifier([]Sender{failing, healthy}, nil, discard)

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, 1, healthy.calls, "healthy sender still delivers")
}
