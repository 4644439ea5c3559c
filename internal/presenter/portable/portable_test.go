package portable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"localnotify/pkg/localnotify"
)

func TestPresentForwardsToNotify(t *testing.T) {
	t.Parallel()
	var got []string
	p := New(Config{Icon: "bell.png"})
	p.notify = func(title, body, icon string) error {
		got = []string{title, body, icon}
		return nil
	}

	h, err := p.Present(context.Background(), localnotify.Delivered{Request: localnotify.Request{Title: "T", Body: "B"}})
	assert.NoError(t, err)
	assert.Empty(t, h)
	assert.Equal(t, []string{"T", "B", "bell.png"}, got)
	assert.NoError(t, p.Withdraw(context.Background(), ""))
}

func TestPresentError(t *testing.T) {
	t.Parallel()
	p := New(Config{})
	p.notify = func(string, string, string) error { return errors.New("no notifier") }
	_, err := p.Present(context.Background(), localnotify.Delivered{})
	assert.EqualError(t, err, "no notifier")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Present(ctx, localnotify.Delivered{})
	assert.ErrorIs(t, err, context.Canceled)
}
