// Package router turns incoming chat updates into command handler calls.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "upsmon/internal/runtime/supervisor"
	kit "upsmon/internal/transport"
	logx "upsmon/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string // without the leading slash
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type Config struct {
	// AllowedChats restricts who may run commands. Empty allows everyone.
	AllowedChats []int64
	Workers      int           // 0 means 2
	Timeout      time.Duration // default per-command timeout; 0 means 30s
	// UnknownReply is sent for unrecognized commands; empty ignores them.
	UnknownReply string
}

type CommandManager struct {
	mu   sync.RWMutex
	cmds map[string]Command
	mw   []Middleware

	cfg    Config
	allow  map[int64]struct{}
	log    logx.Logger
	sender kit.Sender

	jobs chan func()
}

func NewCommandManager(cfg Config, sender kit.Sender, log logx.Logger) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	allow := make(map[int64]struct{}, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allow[id] = struct{}{}
	}
	return &CommandManager{
		cmds:   map[string]Command{},
		cfg:    cfg,
		allow:  allow,
		log:    log,
		sender: sender,
		jobs:   make(chan func(), 64),
	}
}

// SetRegistry replaces the command set. When the sender can publish a
// command menu it is updated in the background.
func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command) {
	reg := make(map[string]Command, len(cmds))
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		reg[name] = c
		menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
	}
	m.mu.Lock()
	m.cmds = reg
	m.mu.Unlock()

	if up, ok := m.sender.(kit.CommandMenuUpdater); ok {
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// Use appends middleware applied to every handler (outermost first).
func (m *CommandManager) Use(mw ...Middleware) {
	m.mu.Lock()
	m.mw = append(m.mw, mw...)
	m.mu.Unlock()
}

// DispatchLoop routes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	jobs := m.jobs
	for i := 0; i < m.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.cfg.Workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if len(m.allow) > 0 {
		if _, ok := m.allow[msg.ChatID]; !ok {
			m.log.Debug("command from foreign chat ignored", logx.Int64("chat_id", msg.ChatID), logx.Int64("from_id", msg.FromID))
			return
		}
	}

	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	mw := append([]Middleware(nil), m.mw...)
	m.mu.RUnlock()
	if !ok {
		if m.cfg.UnknownReply != "" {
			if _, err := m.sender.SendText(ctx, chat, m.cfg.UnknownReply, nil); err != nil {
				m.log.Warn("unknown-command reply failed", logx.Err(err))
			}
		}
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Sender:  m.sender,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}
	h := Chain(cmd.Handle, append(mw, MWTimeout(timeout))...)

	job := func() { _ = h(ctx, req) }
	select {
	case m.jobs <- job:
	default:
		m.log.Warn("command dropped (workers busy)", logx.String("cmd", cmd.Name), logx.Int64("chat_id", msg.ChatID))
	}
}

// Dispatch runs one update synchronously; used by tests and one-shot tools.
func (m *CommandManager) Dispatch(ctx context.Context, up kit.Update) {
	m.routeUpdate(ctx, up)
	for {
		select {
		case job := <-m.jobs:
			job()
		default:
			return
		}
	}
}
