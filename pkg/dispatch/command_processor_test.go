package dispatch_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kouweizhong/eventcore/pkg/dispatch"
	"github.com/kouweizhong/eventcore/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCommand struct {
	domain.BaseCommand
}

func newTestCommand(commandType string) testCommand {
	return testCommand{BaseCommand: domain.NewBaseCommand("", "agg-1", commandType)}
}

func TestRegisterDuplicateCommandTypePanics(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error { return nil }))

	assert.Panics(t, func() {
		p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error { return nil }))
	})
}

func TestRegisterAnyTwicePanics(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	p.RegisterAny(domain.CommandHandlerFunc(func(domain.Command) error { return nil }))

	assert.Panics(t, func() {
		p.RegisterAny(domain.CommandHandlerFunc(func(domain.Command) error { return nil }))
	})
}

func TestProcessMessageNoHandlerReturnsError(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	err := p.ProcessMessage(newTestCommand("Widget.Create"))
	require.ErrorIs(t, err, domain.ErrNoHandler)
}

func TestProcessMessageInvokesRegisteredHandler(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	var handled int32
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}))

	require.NoError(t, p.ProcessMessage(newTestCommand("Widget.Create")))
	assert.EqualValues(t, 1, atomic.LoadInt32(&handled))
}

func TestProcessMessageRunsAnyHandlerAfterSpecificHandler(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	var order []string
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error {
		order = append(order, "specific")
		return nil
	}))
	p.RegisterAny(domain.CommandHandlerFunc(func(domain.Command) error {
		order = append(order, "any")
		return nil
	}))

	require.NoError(t, p.ProcessMessage(newTestCommand("Widget.Create")))
	assert.Equal(t, []string{"specific", "any"}, order)
}

func TestProcessMessageRetriesFailingHandler(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	var attempts int32
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, p.ProcessMessage(newTestCommand("Widget.Create")))
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestProcessMessageGivesUpAfterThreeAttempts(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	var attempts int32
	boom := errors.New("boom")
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error {
		atomic.AddInt32(&attempts, 1)
		return boom
	}))

	err := p.ProcessMessage(newTestCommand("Widget.Create"))
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestProcessMessageSkipsAnyHandlerWhenSpecificHandlerFails(t *testing.T) {
	p := dispatch.NewCommandProcessor(nil)
	boom := errors.New("boom")
	var anyRan bool
	p.Register("Widget.Create", domain.CommandHandlerFunc(func(domain.Command) error { return boom }))
	p.RegisterAny(domain.CommandHandlerFunc(func(domain.Command) error {
		anyRan = true
		return nil
	}))

	err := p.ProcessMessage(newTestCommand("Widget.Create"))
	require.ErrorIs(t, err, boom)
	assert.False(t, anyRan)
}
