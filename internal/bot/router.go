package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/workout-ledger/internal/bot/handlers"
	"github.com/Proton-105/workout-ledger/internal/bot/keyboard"
)

// Router dispatches commands, menu labels and callbacks.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]handlers.Handler
	aliases        map[string]string
	callbacks      map[string]handlers.CallbackHandler
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		aliases:     make(map[string]string),
		callbacks:   make(map[string]handlers.CallbackHandler),
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterAlias routes messages whose whole text is label to cmd.
func (r *Router) RegisterAlias(label, cmd string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[label] = cmd
}

// RegisterCallback registers a handler for a callback unique.
func (r *Router) RegisterCallback(unique string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[unique] = h
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the fallback handler for unmatched messages.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route runs the middleware chain around the handler matching the update.
// Updates nothing matches are dropped before any middleware runs.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	h := r.match(c)
	if h == nil {
		return nil
	}

	r.mu.RLock()
	chain := append([]handlers.Middleware(nil), r.middlewares...)
	r.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h(c)
}

func (r *Router) match(c telebot.Context) handlers.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if callback := c.Callback(); callback != nil {
		cb, err := keyboard.ParseCallback(callback.Data)
		if err != nil {
			r.log.Info("ignoring callback", slog.Any("error", err))
			return nil
		}
		h, ok := r.callbacks[cb.Action]
		if !ok {
			r.log.Info("no callback handler found", slog.String("action", cb.Action))
			return nil
		}
		return handlers.Handler(h)
	}

	text := strings.TrimSpace(c.Text())
	if cmd := commandName(text); cmd != "" {
		if h, ok := r.commands[cmd]; ok {
			return h
		}
	} else if cmd, ok := r.aliases[text]; ok {
		return r.commands[cmd]
	}
	return r.defaultHandler
}
