package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/user/chatpane/internal/dispatch"
	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
)

// ErrSessionEnded is returned by operations whose response arrived after
// Logout. The response is discarded.
var ErrSessionEnded = errors.New("session ended")

// errChatDiscarded fails sends queued behind a first message that failed.
var errChatDiscarded = errors.New("the chat's first message failed to send")

const (
	sessionExpiredMessage = "Your session has expired. Please log in again."
	orphanDeleteTimeout   = 30 * time.Second
)

// SendError reports a failed first message whose provisional chat was
// discarded. Draft carries the text so it can be put back in the composer.
type SendError struct {
	Draft string
	Err   error
}

func (e *SendError) Error() string {
	return "send message: " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// State is a point-in-time copy of everything the shell renders.
type State struct {
	Chats    []types.Chat
	ActiveID types.ChatID
	Error    string
	Loading  bool
	Sending  []types.ChatID
}

// Active returns the active chat, if any.
func (s State) Active() (types.Chat, bool) {
	if s.ActiveID == "" {
		return types.Chat{}, false
	}
	for _, chat := range s.Chats {
		if chat.ID == s.ActiveID {
			return chat, true
		}
	}
	return types.Chat{}, false
}

// IsSending reports whether a send is in flight for the chat.
func (s State) IsSending(id types.ChatID) bool {
	return slices.Contains(s.Sending, id)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLanes shares a dispatch queue instead of creating one. The caller
// owns its lifecycle.
func WithLanes(q *dispatch.Queue) Option {
	return func(m *Manager) {
		m.lanes = q
		m.ownLanes = false
	}
}

// WithOnUnauthenticated registers a hook run after the session expired and
// was cleared.
func WithOnUnauthenticated(fn func()) Option {
	return func(m *Manager) { m.onUnauth = fn }
}

// Manager owns the chat collection for one signed-in user. All methods are
// safe for concurrent use. State is guarded by a single mutex and gateway
// calls are made without holding it.
type Manager struct {
	gateway  backend.Gateway
	tokens   types.TokenStore
	lanes    *dispatch.Queue
	ownLanes bool
	logger   *slog.Logger
	onUnauth func()

	mu      sync.Mutex
	coll    *Collection
	errMsg  string
	loading int
	epoch   uint64
	base    context.Context
	cancel  context.CancelFunc

	// sending counts in-flight sends per lane key.
	sending map[string]int
	// aliases maps provisional ids to their server ids.
	aliases map[types.ChatID]types.ChatID
	// laneOf keeps a re-keyed chat on its original lane.
	laneOf map[types.ChatID]string
	// discarded holds provisional chats dropped after their first message
	// failed, so sends queued behind it fail the same way.
	discarded map[types.ChatID]struct{}
	// deleting holds ids whose delete call is in flight.
	deleting map[types.ChatID]struct{}
	// persistedAt records the sequence number at which a chat got its
	// server id, so a refresh requested earlier does not drop it.
	persistedAt map[types.ChatID]uint64
	seq         uint64

	subs    map[int]chan struct{}
	nextSub int

	wg sync.WaitGroup
}

// NewManager creates a Manager backed by gateway. tokens is cleared when the
// backend reports the session as unauthenticated.
func NewManager(gateway backend.Gateway, tokens types.TokenStore, opts ...Option) *Manager {
	m := &Manager{
		gateway:  gateway,
		tokens:   tokens,
		ownLanes: true,
		logger:   slog.Default(),
		coll:     NewCollection(),
		subs:     make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lanes == nil {
		m.lanes = dispatch.NewQueue(4)
		m.ownLanes = true
	}
	m.base, m.cancel = context.WithCancel(context.Background())
	m.resetMapsLocked()
	return m
}

// Close cancels in-flight calls and stops the manager's lanes.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	if m.ownLanes {
		m.lanes.Stop()
	}
	m.wg.Wait()
}

func (m *Manager) resetMapsLocked() {
	m.sending = make(map[string]int)
	m.aliases = make(map[types.ChatID]types.ChatID)
	m.laneOf = make(map[types.ChatID]string)
	m.deleting = make(map[types.ChatID]struct{})
	m.discarded = make(map[types.ChatID]struct{})
	m.persistedAt = make(map[types.ChatID]uint64)
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Chats:    m.coll.Snapshot(),
		ActiveID: m.coll.Active(),
		Error:    m.errMsg,
		Loading:  m.loading > 0,
	}
	for key, n := range m.sending {
		if n > 0 {
			s.Sending = append(s.Sending, m.resolveLocked(types.ChatID(key)))
		}
	}
	slices.Sort(s.Sending)
	return s
}

// ClearError dismisses the current error message.
func (m *Manager) ClearError() {
	m.mu.Lock()
	m.errMsg = ""
	m.mu.Unlock()
	m.notify()
}

// Subscribe returns a channel that receives a value whenever the state
// changes, and a function to unsubscribe. Notifications coalesce.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	subs := make([]chan struct{}, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateChat starts a fresh conversation by clearing the selection. The
// chat itself is created by the first message sent.
func (m *Manager) CreateChat() {
	m.mu.Lock()
	m.coll.Deselect()
	m.mu.Unlock()
	m.notify()
}

// SelectChat makes id the active chat and loads its history. A failed load
// keeps the selection and records an error.
func (m *Manager) SelectChat(ctx context.Context, id types.ChatID) error {
	var (
		provisional bool
		history     []types.Message
	)
	return m.optimistic(ctx, mutation{
		op:      "load chat",
		loading: true,
		apply: func(c *Collection) error {
			id = m.resolveLocked(id)
			chat, ok := c.Get(id)
			if !ok {
				return backend.Validation("select chat", fmt.Errorf("%s: %w", id, ErrUnknownChat))
			}
			provisional = chat.Provisional
			return c.SetActive(id)
		},
		call: func(ctx context.Context) error {
			if provisional {
				return nil
			}
			msgs, err := m.gateway.FetchHistory(ctx, id)
			history = msgs
			return err
		},
		reconcile: func(c *Collection) {
			if provisional {
				return
			}
			if chat, ok := c.Get(id); ok {
				chat.Messages = withLocal(history, chat.Messages)
			}
		},
	})
}

// SendMessage sends text to the active chat, creating a provisional chat
// when none is active. Blank text is ignored. The user message appears
// immediately as pending; the reply is appended when it arrives. Sends to
// the same chat are delivered in order.
//
// If the first message of a new chat fails, the chat is discarded and the
// returned error is a *SendError carrying the text.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	const op = "send message"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := validateMessage(text); err != nil {
		return m.reject(op, backend.Validation(op, err))
	}

	var (
		id        types.ChatID
		key       string
		res       *backend.SendResult
		discarded bool
	)
	err := m.optimistic(ctx, mutation{
		op:      op,
		loading: true,
		apply: func(c *Collection) error {
			if chat, ok := c.ActiveChat(); ok {
				id = chat.ID
			} else {
				id = types.NewProvisionalID()
				chat := &types.Chat{ID: id, Name: DeriveName(text), Provisional: true}
				if err := c.InsertFront(chat); err != nil {
					return err
				}
				if err := c.SetActive(id); err != nil {
					return err
				}
			}
			msg := types.Message{Sender: types.SenderUser, Text: text, Status: types.StatusPending}
			if err := c.Append(id, msg); err != nil {
				return err
			}
			key = m.laneKeyLocked(id)
			m.sending[key]++
			return nil
		},
		lane: func() string { return key },
		call: func(ctx context.Context) error {
			req, err := m.sendRequest(id, text)
			if err != nil {
				return err
			}
			r, err := m.gateway.SendPrompt(ctx, req)
			if err == nil && r == nil {
				err = &backend.Error{Op: op, Kind: backend.ErrNetwork, Message: "empty response"}
			}
			res = r
			return err
		},
		settle: func() {
			if m.sending[key]--; m.sending[key] <= 0 {
				delete(m.sending, key)
			}
		},
		reconcile: func(c *Collection) {
			m.deliverLocked(c, id, key, text, res)
		},
		revert: func(c *Collection, err error) {
			discarded = m.failSendLocked(c, id, text)
		},
	})
	if err != nil && discarded {
		return &SendError{Draft: text, Err: err}
	}
	return err
}

// sendRequest builds the prompt for the chat's current identity. A chat
// that was persisted while this message waited in its lane is addressed by
// its server id.
func (m *Manager) sendRequest(id types.ChatID, text string) (backend.SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.resolveLocked(id)
	chat, ok := m.coll.Get(cur)
	if !ok {
		if _, gone := m.discarded[cur]; gone {
			return backend.SendRequest{}, fmt.Errorf("send to %s: %w", cur, errChatDiscarded)
		}
		return backend.SendRequest{}, fmt.Errorf("send to %s: %w", cur, ErrUnknownChat)
	}
	if chat.Provisional {
		return backend.SendRequest{Text: text, NewChat: true, NewChatName: chat.Name}, nil
	}
	return backend.SendRequest{Text: text, ChatID: cur}, nil
}

func (m *Manager) deliverLocked(c *Collection, id types.ChatID, key, text string, res *backend.SendResult) {
	cur := m.resolveLocked(id)
	chat, ok := c.Get(cur)
	if !ok {
		_, failed := m.discarded[cur]
		if cur.IsProvisional() && res.ChatID != "" && !failed {
			m.deleteOrphanLocked(res.ChatID)
		}
		return
	}
	if chat.Provisional {
		if _, err := c.Rekey(cur, res.ChatID); err != nil {
			m.logger.Error("rekey chat", "chat_id", cur, "error", err)
			return
		}
		m.aliases[cur] = res.ChatID
		m.laneOf[res.ChatID] = key
		m.seq++
		m.persistedAt[res.ChatID] = m.seq
		m.logger.Debug("chat persisted", "provisional_id", cur, "chat_id", res.ChatID)
	}

	reply := types.Message{Sender: types.SenderAI, Text: res.Reply, Status: types.StatusSent}
	i := firstPending(chat.Messages, text)
	if i < 0 {
		chat.Messages = append(chat.Messages, reply)
		return
	}
	chat.Messages[i].Status = types.StatusSent
	chat.Messages = slices.Insert(chat.Messages, i+1, reply)
}

// failSendLocked handles a failed send and reports whether the chat was
// discarded.
func (m *Manager) failSendLocked(c *Collection, id types.ChatID, text string) bool {
	cur := m.resolveLocked(id)
	chat, ok := c.Get(cur)
	if !ok {
		_, gone := m.discarded[cur]
		return gone
	}
	if chat.Provisional {
		c.Remove(cur)
		m.discarded[cur] = struct{}{}
		return true
	}
	if i := firstPending(chat.Messages, text); i >= 0 {
		chat.Messages[i].Status = types.StatusFailed
	}
	return false
}

// deleteOrphanLocked removes a chat the backend created for a provisional
// chat that was deleted locally while its first message was in flight.
func (m *Manager) deleteOrphanLocked(id types.ChatID) {
	base := m.base
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(base, orphanDeleteTimeout)
		defer cancel()
		if err := m.gateway.DeleteChat(ctx, id); err != nil && !errors.Is(err, backend.ErrNotFound) {
			m.logger.Warn("delete orphaned chat", "chat_id", id, "error", err)
		}
	}()
}

// RenameChat renames a chat. A blank name resets it to the default label.
// Names that are too long or already used by another chat are rejected
// before any network call. The new name stays even if the backend call
// fails.
func (m *Manager) RenameChat(ctx context.Context, id types.ChatID, name string) error {
	const op = "rename chat"
	name = normalizeName(name)

	var (
		known   bool
		summary types.ChatSummary
	)
	return m.optimistic(ctx, mutation{
		op: op,
		apply: func(c *Collection) error {
			id = m.resolveLocked(id)
			chat, ok := c.Get(id)
			if !ok {
				return nil
			}
			if err := validateName(name); err != nil {
				return backend.Validation(op, err)
			}
			if c.nameTaken(name, chat) {
				return backend.Validation(op, errNameTaken)
			}
			known = true
			chat.Name = name
			return nil
		},
		call: func(ctx context.Context) error {
			if !known {
				return nil
			}
			m.mu.Lock()
			cur := m.resolveLocked(id)
			chat, ok := m.coll.Get(cur)
			remote := ok && !chat.Provisional
			m.mu.Unlock()
			if !remote {
				return nil
			}
			s, err := m.gateway.RenameChat(ctx, cur, name)
			summary = s
			return err
		},
		satisfied: isNotFound,
		reconcile: func(c *Collection) {
			if summary.Name == "" || summary.Name == name {
				return
			}
			if chat, ok := c.Get(summary.ID); ok {
				chat.Name = summary.Name
			}
		},
	})
}

// DeleteChat removes a chat, clearing the selection if it was active.
// Unknown ids and chats already gone on the backend count as deleted. The
// chat is not restored if the backend call fails.
func (m *Manager) DeleteChat(ctx context.Context, id types.ChatID) error {
	var remote bool
	return m.optimistic(ctx, mutation{
		op: "delete chat",
		apply: func(c *Collection) error {
			id = m.resolveLocked(id)
			chat, ok := c.Remove(id)
			if !ok || chat.Provisional {
				return nil
			}
			remote = true
			m.deleting[id] = struct{}{}
			return nil
		},
		call: func(ctx context.Context) error {
			if !remote {
				return nil
			}
			return m.gateway.DeleteChat(ctx, id)
		},
		satisfied: isNotFound,
		settle: func() {
			if remote {
				delete(m.deleting, id)
			}
		},
	})
}

// Refresh reloads the chat list from the backend and merges it into the
// collection.
func (m *Manager) Refresh(ctx context.Context) error {
	var (
		start uint64
		list  []types.ChatSummary
	)
	return m.optimistic(ctx, mutation{
		op:      "load chats",
		loading: true,
		apply: func(c *Collection) error {
			start = m.seq
			return nil
		},
		call: func(ctx context.Context) error {
			l, err := m.gateway.ListChats(ctx)
			list = l
			return err
		},
		reconcile: func(c *Collection) {
			keep := make(map[types.ChatID]struct{})
			for id, at := range m.persistedAt {
				if at > start {
					keep[id] = struct{}{}
				}
			}
			c.Merge(list, m.deleting, keep)
		},
	})
}

// Logout clears the collection and the stored session. Calls still in
// flight are cancelled and their responses ignored.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
	m.notify()

	if err := m.tokens.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (m *Manager) resetLocked() {
	m.epoch++
	m.cancel()
	m.base, m.cancel = context.WithCancel(context.Background())
	m.coll.Reset()
	m.errMsg = ""
	m.loading = 0
	m.resetMapsLocked()
}

// expire ends the session after the backend rejected the token.
func (m *Manager) expire() {
	m.mu.Lock()
	m.resetLocked()
	m.errMsg = sessionExpiredMessage
	hook := m.onUnauth
	m.mu.Unlock()
	m.notify()

	if err := m.tokens.Clear(); err != nil {
		m.logger.Warn("clear session", "error", err)
	}
	if hook != nil {
		hook()
	}
}

// mutation describes one optimistic operation. apply, settle, reconcile and
// revert run with the manager locked; call runs unlocked, on lane() when
// set.
type mutation struct {
	op        string
	loading   bool
	apply     func(c *Collection) error
	lane      func() string
	call      func(ctx context.Context) error
	satisfied func(err error) bool
	settle    func()
	reconcile func(c *Collection)
	revert    func(c *Collection, err error)
}

// optimistic applies a local change, performs the backend call and then
// reconciles or reverts. A call on a lane is settled before the lane is
// released, so the next job for the same chat sees its outcome. Results
// that arrive after a Logout are dropped.
func (m *Manager) optimistic(ctx context.Context, mut mutation) error {
	ctx, release := m.bind(ctx)
	defer release()

	m.mu.Lock()
	epoch := m.epoch
	if mut.apply != nil {
		if err := mut.apply(m.coll); err != nil {
			m.recordLocked(mut.op, err)
			m.mu.Unlock()
			m.notify()
			return err
		}
	}
	if mut.loading {
		m.loading++
	}
	m.mu.Unlock()
	m.notify()

	var err error
	if mut.lane == nil {
		err = m.finish(epoch, mut, mut.call(ctx))
	} else {
		// The job context never ends so the lane cannot skip it. finish
		// runs on the lane unless the queue stopped first.
		settled := false
		err = m.lanes.Do(context.WithoutCancel(ctx), mut.lane(), func(laneCtx context.Context) error {
			callCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			stop := context.AfterFunc(laneCtx, cancel)
			defer stop()

			err := callCtx.Err()
			if err == nil {
				err = mut.call(callCtx)
			}
			settled = true
			return m.finish(epoch, mut, err)
		})
		if !settled {
			err = m.finish(epoch, mut, err)
		}
	}

	if errors.Is(err, backend.ErrUnauthenticated) {
		m.expire()
	}
	return err
}

// finish settles a mutation's backend result under the lock.
func (m *Manager) finish(epoch uint64, mut mutation, err error) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.Debug("dropping response from ended session", "op", mut.op)
		return ErrSessionEnded
	}
	if mut.loading {
		m.loading--
	}
	if mut.settle != nil {
		mut.settle()
	}
	if err != nil && mut.satisfied != nil && mut.satisfied(err) {
		m.logger.Debug("treating error as success", "op", mut.op, "error", err)
		err = nil
	}
	if err == nil {
		if mut.reconcile != nil {
			mut.reconcile(m.coll)
		}
	} else {
		if mut.revert != nil {
			mut.revert(m.coll, err)
		}
		m.recordLocked(mut.op, err)
	}
	m.mu.Unlock()
	m.notify()
	return err
}

// bind derives a context that is also cancelled when the session ends.
func (m *Manager) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	base := m.base
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) reject(op string, err error) error {
	m.mu.Lock()
	m.recordLocked(op, err)
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *Manager) recordLocked(op string, err error) {
	m.errMsg = userMessage(op, err)
	m.logger.Warn("chat operation failed", "op", op, "error", err)
}

func (m *Manager) resolveLocked(id types.ChatID) types.ChatID {
	if server, ok := m.aliases[id]; ok {
		return server
	}
	return id
}

func (m *Manager) laneKeyLocked(id types.ChatID) string {
	if key, ok := m.laneOf[id]; ok {
		return key
	}
	return string(id)
}

// userMessage converts an operation failure into the text shown to the user.
func userMessage(op string, err error) string {
	switch {
	case errors.Is(err, backend.ErrUnauthenticated):
		return sessionExpiredMessage
	case errors.Is(err, backend.ErrValidation):
		return fmt.Sprintf("Could not %s: %s", op, errorDetail(err))
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, ErrUnknownChat):
		return fmt.Sprintf("Could not %s: the chat no longer exists.", op)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Could not %s: the request timed out.", op)
	default:
		return fmt.Sprintf("Could not %s. Check your connection and try again.", op)
	}
}

func errorDetail(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		if be.Message != "" {
			return be.Message
		}
		if be.Err != nil {
			return be.Err.Error()
		}
	}
	return err.Error()
}

func isNotFound(err error) bool {
	return errors.Is(err, backend.ErrNotFound)
}

// firstPending returns the index of the oldest pending user message with
// the given text.
func firstPending(msgs []types.Message, text string) int {
	for i, msg := range msgs {
		if msg.Sender == types.SenderUser && msg.Status == types.StatusPending && msg.Text == text {
			return i
		}
	}
	return -1
}

// withLocal returns history followed by the local messages that have not
// reached the backend yet.
func withLocal(history, local []types.Message) []types.Message {
	out := append([]types.Message(nil), history...)
	for _, msg := range local {
		if msg.Status == types.StatusPending || msg.Status == types.StatusFailed {
			out = append(out, msg)
		}
	}
	return out
}
