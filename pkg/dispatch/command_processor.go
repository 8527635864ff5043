// Package dispatch implements the in-process command processor and event
// dispatcher (spec §4.6, §4.7): type-keyed registration, bounded retry,
// and correlation/trace-id propagation.
//
// Grounded on the teacher's pkg/eventsourcing/commandbus.go
// (DefaultCommandBus: registry, panic-on-duplicate-registration,
// type-keyed Send) and pkg/middleware/logging.go/recovery.go (slog
// logging around each dispatch, folded directly in rather than kept as a
// separate middleware chain, since spec §4.6/§4.7 call for exactly retry
// + logging and nothing more general).
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

const (
	commandRetryAttempts = 3
	commandRetryUnit     = time.Second
)

// CommandProcessor is the type-keyed command dispatcher spec §4.6
// describes.
type CommandProcessor struct {
	mu         sync.RWMutex
	handlers   map[string]domain.CommandHandler
	anyHandler domain.CommandHandler
	logger     *slog.Logger
}

// NewCommandProcessor constructs an empty processor. A nil logger falls
// back to slog.Default().
func NewCommandProcessor(logger *slog.Logger) *CommandProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandProcessor{handlers: make(map[string]domain.CommandHandler), logger: logger}
}

// Register associates a command type with its handler. Registering the
// same command type twice panics with domain.ErrDuplicateHandler — per
// spec §4.6/§7, this is a fatal startup error, not a runtime one, and per
// spec §5 registries are populated at startup and treated as immutable
// thereafter.
func (p *CommandProcessor) Register(commandType string, handler domain.CommandHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handlers[commandType]; exists {
		panic(fmt.Errorf("eventcore: %w: command type %q already has a handler", domain.ErrDuplicateHandler, commandType))
	}
	p.handlers[commandType] = handler
}

// RegisterAny installs a generic "any command" handler (spec §4.6 step 3)
// invoked after the specific handler on every ProcessMessage call, for
// auditing. Only one may be registered; registering a second panics like
// Register does.
func (p *CommandProcessor) RegisterAny(handler domain.CommandHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.anyHandler != nil {
		panic(fmt.Errorf("eventcore: %w: an \"any command\" handler is already registered", domain.ErrDuplicateHandler))
	}
	p.anyHandler = handler
}

// ProcessMessage looks up cmd's handler by its concrete command type and
// invokes it with bounded retry (spec §4.6 steps 1-2), then the "any
// command" handler if one is registered (step 3), with the same retry
// policy. Fails with domain.ErrNoHandler if no handler is registered.
func (p *CommandProcessor) ProcessMessage(cmd domain.Command) error {
	p.mu.RLock()
	handler, ok := p.handlers[cmd.CommandType()]
	anyHandler := p.anyHandler
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: command type %q", domain.ErrNoHandler, cmd.CommandType())
	}

	if err := p.invoke(cmd, handler); err != nil {
		return err
	}
	if anyHandler != nil {
		if err := p.invoke(cmd, anyHandler); err != nil {
			return err
		}
	}
	return nil
}

func (p *CommandProcessor) invoke(cmd domain.Command, handler domain.CommandHandler) error {
	err := retry(commandRetryAttempts, commandRetryUnit, false, func() error {
		return handler.Handle(cmd)
	})
	if err != nil {
		p.logger.Error("command handler failed after retries",
			slog.String("command_type", cmd.CommandType()),
			slog.String("command_id", cmd.MessageID()),
			slog.String("error", err.Error()),
		)
	}
	return err
}
