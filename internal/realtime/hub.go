// Package realtime runs the shared world: one event loop that owns every
// live connection and fans world events out to them.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/realtime/protocol"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	"github.com/mcoot/dragonrealm/internal/services/chat"
	"github.com/mcoot/dragonrealm/internal/services/collectibles"
	"github.com/mcoot/dragonrealm/internal/services/presence"
	"github.com/mcoot/dragonrealm/internal/world"
)

const positionFlushTimeout = 5 * time.Second

// ErrHubStopped is returned when the hub is no longer running
var ErrHubStopped = errors.New("realtime hub stopped")

// Sessions is the slice of the auth service the hub needs
type Sessions interface {
	ValidateSessionID(id string) (*auth.Session, error)
	GetUser(ctx context.Context, userID model.UserID) (*model.User, error)
}

// Positions receives position changes for persistence
type Positions interface {
	Record(userID model.UserID, pos model.Position)
	Latest(userID model.UserID) (model.Position, bool)
	FlushUser(ctx context.Context, userID model.UserID) error
}

// Dependencies are the services the hub coordinates
type Dependencies struct {
	Sessions  Sessions
	Registry  *presence.Registry
	Ledger    *collectibles.Ledger
	Chat      *chat.Router
	Catalog   *world.Catalog
	Positions Positions
	World     world.Config
	Clock     clock.Clock
}

// inboundEvent is one frame from a client, or its departure. Both share one
// queue so a disconnect is handled after every frame the client sent.
type inboundEvent struct {
	client *Client
	typ    protocol.Type
	msg    any
	err    error
	leave  bool
}

type eviction struct {
	sessionID string
	userID    model.UserID
	reason    auth.EndReason
}

type nicknameChange struct {
	userID model.UserID
	old    string
	new    string
}

// Hub is the single coordinating event loop. Registry and ledger mutations
// that come from connections all happen on the Run goroutine, one at a time.
type Hub struct {
	deps     Dependencies
	cfg      Config
	bounds   world.Bounds
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// owned by the Run goroutine; mu only guards reads from elsewhere
	clients map[model.ConnectionID]*Client
	mu      sync.RWMutex

	register chan *Client
	inbound  chan inboundEvent
	evict    chan eviction
	nickname chan nicknameChange
	stopped  chan struct{}
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(deps Dependencies, cfg Config, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		deps:     deps,
		cfg:      cfg,
		bounds:   deps.World.Bounds(),
		logger:   logger.With(slog.String("component", "realtime")),
		clients:  make(map[model.ConnectionID]*Client),
		register: make(chan *Client),
		inbound:  make(chan inboundEvent, cfg.InboundBuffer),
		evict:    make(chan eviction, 64),
		nickname: make(chan nicknameChange, 64),
		stopped:  make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin:       cfg.checkOrigin,
	}
	return h
}

// Run starts the hub's event loop and blocks until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("realtime hub started")

	var snapshots <-chan time.Time
	if h.cfg.SnapshotInterval > 0 {
		ticker := time.NewTicker(h.cfg.SnapshotInterval)
		defer ticker.Stop()
		snapshots = ticker.C
	}

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case ev := <-h.inbound:
			h.handleInbound(ev)

		case ev := <-h.evict:
			h.handleEviction(ev)

		case change := <-h.nickname:
			h.handleNickname(change)

		case <-snapshots:
			h.broadcastSnapshot()

		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Unregister removes a client from the hub once the frames it already sent
// have been handled. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.inbound <- inboundEvent{client: client, leave: true}:
	case <-h.stopped:
	}
}

// EndSession evicts the connections belonging to a session that has ended.
// It is registered as an auth end hook and may be called from any goroutine,
// including the hub's own.
func (h *Hub) EndSession(session auth.Session, reason auth.EndReason) {
	ev := eviction{sessionID: session.ID, userID: session.UserID, reason: reason}
	select {
	case h.evict <- ev:
	default:
		go func() {
			select {
			case h.evict <- ev:
			case <-h.stopped:
			}
		}()
	}
}

// NicknameChanged tells every connection that a user's nickname changed
func (h *Hub) NicknameChanged(userID model.UserID, oldNickname, newNickname string) {
	select {
	case h.nickname <- nicknameChange{userID: userID, old: oldNickname, new: newNickname}:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// receive decodes one inbound frame and queues it for the loop
func (h *Hub) receive(client *Client, data []byte) bool {
	typ, msg, err := protocol.Decode(data)
	select {
	case h.inbound <- inboundEvent{client: client, typ: typ, msg: msg, err: err}:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) handleRegister(client *Client) {
	session, err := h.deps.Sessions.ValidateSessionID(client.sessionID)
	if err != nil {
		h.logger.Info("rejecting connection for ended session",
			slog.String("connection_id", string(client.id)),
			slog.String("user_id", string(client.userID)))
		h.send(client, protocol.TypeSessionTerminated, protocol.SessionTerminated{Reason: string(auth.EndExpired)})
		client.closeWith(websocket.ClosePolicyViolation, "session ended")
		close(client.send)
		return
	}
	client.nickname = session.User.Nickname

	entry := h.deps.Registry.Register(client.id, client.userID, client.nickname, client.start)

	h.mu.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	user := session.User
	h.send(client, protocol.TypeWelcome, protocol.Welcome{
		ConnectionID: client.id,
		User:         protocol.UserFrom(&user),
		Position:     entry.Position,
	})
	h.send(client, protocol.TypePresenceSnapshot, protocol.SnapshotFrom(h.deps.Registry.Snapshot()))
	h.send(client, protocol.TypeCollectiblesState, protocol.CollectiblesFrom(h.deps.Ledger.SnapshotState()))
	h.broadcast(protocol.TypeUserConnected, client.id, protocol.PresenceFrom(entry))

	h.logger.Info("client registered",
		slog.String("connection_id", string(client.id)),
		slog.String("user_id", string(client.userID)),
		slog.Int("total_clients", clientCount))
}

// remove drops a client, closes its send buffer and announces the departure
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	clientCount := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	h.deps.Chat.Forget(client.id)

	entry, ok := h.deps.Registry.Unregister(client.id)
	if ok {
		h.deps.Positions.Record(entry.UserID, entry.Position)
		go h.flushPosition(entry.UserID)
		h.broadcast(protocol.TypeUserDisconnected, client.id, protocol.UserDisconnected{
			ConnectionID: client.id,
			UserID:       entry.UserID,
			Nickname:     entry.Nickname,
		})
	}

	h.logger.Info("client unregistered",
		slog.String("connection_id", string(client.id)),
		slog.String("user_id", string(client.userID)),
		slog.Duration("connection_duration", h.deps.Clock.Since(client.connectedAt)),
		slog.Int("total_clients", clientCount))
}

func (h *Hub) flushPosition(userID model.UserID) {
	ctx, cancel := context.WithTimeout(context.Background(), positionFlushTimeout)
	defer cancel()
	if err := h.deps.Positions.FlushUser(ctx, userID); err != nil {
		h.logger.Warn("failed to persist last position",
			slog.String("user_id", string(userID)),
			slog.Any("error", err))
	}
}

func (h *Hub) handleInbound(ev inboundEvent) {
	client := ev.client
	if ev.leave {
		h.remove(client)
		return
	}
	if h.lookup(client.id) != client {
		return
	}

	// every event re-checks the session so terminated sessions stop immediately
	if _, err := h.deps.Sessions.ValidateSessionID(client.sessionID); err != nil {
		reason := auth.EndTerminated
		if errors.Is(err, model.ErrSessionExpired) {
			reason = auth.EndExpired
		}
		h.terminate(client, reason)
		return
	}

	if ev.err != nil {
		h.sendError(client, ev.err)
		return
	}

	switch msg := ev.msg.(type) {
	case protocol.PositionUpdate:
		h.handlePosition(client, msg)
	case protocol.DragonSelected:
		h.handleDragonSelected(client, msg)
	case protocol.ChatMessage:
		h.handleChat(client, msg)
	case protocol.CollectibleCollected:
		h.handleCollect(client, msg)
	default:
		h.logger.Warn("unhandled inbound event", slog.String("type", string(ev.typ)))
	}
}

func (h *Hub) handlePosition(client *Client, msg protocol.PositionUpdate) {
	entry, err := h.deps.Registry.UpdatePosition(client.id, model.Position{X: msg.X, Y: msg.Y})
	if err != nil {
		return
	}
	client.seq++
	h.deps.Positions.Record(entry.UserID, entry.Position)
	h.broadcast(protocol.TypeUserMoved, client.id, protocol.UserMoved{
		ConnectionID: client.id,
		UserID:       entry.UserID,
		X:            entry.Position.X,
		Y:            entry.Position.Y,
		Seq:          client.seq,
	})
}

func (h *Hub) handleDragonSelected(client *Client, msg protocol.DragonSelected) {
	dragon, err := h.deps.Catalog.Get(msg.DragonID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	entry, err := h.deps.Registry.UpdateAvatar(client.id, dragon.ID)
	if err != nil {
		return
	}
	h.broadcast(protocol.TypeDragonSelected, client.id, protocol.AvatarChanged{
		ConnectionID: client.id,
		UserID:       entry.UserID,
		Nickname:     entry.Nickname,
		DragonID:     dragon.ID,
	})
}

func (h *Hub) handleChat(client *Client, msg protocol.ChatMessage) {
	text, err := h.deps.Chat.Prepare(msg.Message)
	if err != nil {
		h.sendError(client, err)
		return
	}
	if !h.deps.Chat.Allow(client.id) {
		h.logger.Debug("chat message dropped by cooldown", slog.String("connection_id", string(client.id)))
		return
	}

	sender, ok := h.deps.Registry.Get(client.id)
	if !ok {
		return
	}

	recipients := h.deps.Registry.Snapshot()
	others := recipients[:0]
	for _, e := range recipients {
		if e.ConnectionID != client.id {
			others = append(others, e)
		}
	}

	sentAt := h.deps.Clock.Now()
	for _, d := range h.deps.Chat.Route(sender.Position, others) {
		target := h.lookup(d.ConnectionID)
		if target == nil {
			continue
		}
		h.send(target, protocol.TypeChatMessage, protocol.ChatDelivery{
			ConnectionID: client.id,
			UserID:       sender.UserID,
			Sender:       sender.Nickname,
			Message:      text,
			Position:     sender.Position,
			Tier:         string(d.Tier),
			SentAt:       sentAt,
		})
	}
}

func (h *Hub) handleCollect(client *Client, msg protocol.CollectibleCollected) {
	outcome, item, err := h.deps.Ledger.AttemptCollect(model.CollectibleID(msg.ID), client.userID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	if outcome != collectibles.Awarded {
		return
	}

	h.logger.Info("collectible awarded",
		slog.String("collectible_id", string(item.ID)),
		slog.String("user_id", string(client.userID)))
	h.broadcastAll(protocol.TypeCollectibleCollected, protocol.CollectibleAwarded{
		ID:          item.ID,
		CollectedBy: client.userID,
		Nickname:    client.nickname,
	})
}

func (h *Hub) handleEviction(ev eviction) {
	h.mu.RLock()
	var targets []*Client
	for _, client := range h.clients {
		if client.sessionID == ev.sessionID || (ev.reason == auth.EndTerminated && client.userID == ev.userID) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	// every target hears about the termination before any departure is announced
	for _, client := range targets {
		h.send(client, protocol.TypeSessionTerminated, protocol.SessionTerminated{Reason: string(ev.reason)})
		client.closeWith(websocket.ClosePolicyViolation, "session terminated")
	}
	for _, client := range targets {
		h.remove(client)
	}
	if len(targets) > 0 {
		h.logger.Info("evicted connections for ended session",
			slog.String("session_id", ev.sessionID),
			slog.String("reason", string(ev.reason)),
			slog.Int("connections", len(targets)))
	}
}

// terminate tells a client its session is over and disconnects it
func (h *Hub) terminate(client *Client, reason auth.EndReason) {
	h.send(client, protocol.TypeSessionTerminated, protocol.SessionTerminated{Reason: string(reason)})
	client.closeWith(websocket.ClosePolicyViolation, "session terminated")
	h.remove(client)
}

func (h *Hub) handleNickname(change nicknameChange) {
	h.mu.RLock()
	for _, client := range h.clients {
		if client.userID == change.userID {
			client.nickname = change.new
		}
	}
	h.mu.RUnlock()

	h.deps.Registry.UpdateNickname(change.userID, change.new)
	h.broadcastAll(protocol.TypeNicknameChanged, protocol.NicknameChanged{
		UserID:      change.userID,
		OldNickname: change.old,
		NewNickname: change.new,
	})
}

func (h *Hub) broadcastSnapshot() {
	if h.ClientCount() == 0 {
		return
	}
	h.broadcastAll(protocol.TypePresenceSnapshot, protocol.SnapshotFrom(h.deps.Registry.Snapshot()))
}

func (h *Hub) shutdown() {
	close(h.stopped)

	h.mu.Lock()
	clientCount := len(h.clients)
	for id, client := range h.clients {
		h.deps.Registry.Unregister(id)
		delete(h.clients, id)
		client.closeWith(websocket.CloseGoingAway, "server shutting down")
		close(client.send)
	}
	h.mu.Unlock()

	h.logger.Info("realtime hub stopped", slog.Int("disconnected_clients", clientCount))
}

func (h *Hub) lookup(id model.ConnectionID) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// broadcast delivers an event to every connection except origin
func (h *Hub) broadcast(t protocol.Type, origin model.ConnectionID, payload any) {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("type", string(t)), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sentCount := 0
	droppedCount := 0
	for id, client := range h.clients {
		if id == origin {
			continue
		}
		if err := h.deliver(client, data); err != nil {
			droppedCount++
			continue
		}
		sentCount++
	}
	if droppedCount > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.String("type", string(t)),
			slog.Int("sent", sentCount),
			slog.Int("dropped", droppedCount))
	}
}

// broadcastAll delivers an event to every connection
func (h *Hub) broadcastAll(t protocol.Type, payload any) {
	h.broadcast(t, "", payload)
}

// send delivers an event to one connection
func (h *Hub) send(client *Client, t protocol.Type, payload any) {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	if err := h.deliver(client, data); err != nil {
		h.logger.Warn("event dropped",
			slog.String("type", string(t)),
			slog.String("connection_id", string(client.id)),
			slog.Any("error", err))
	}
}

// deliver queues a frame without blocking; a full buffer drops the frame
// for that client only
func (h *Hub) deliver(client *Client, data []byte) error {
	select {
	case client.send <- data:
		return nil
	default:
		h.logger.Warn("message dropped - client buffer full",
			slog.String("connection_id", string(client.id)))
		return model.ErrTransport
	}
}

func (h *Hub) sendError(client *Client, err error) {
	h.send(client, protocol.TypeError, errorPayload(err))
}

func errorPayload(err error) protocol.Error {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve) && ve.Kind == model.ValidationOutOfRange:
		return protocol.Error{Code: protocol.CodeOutOfRange, Message: ve.Error()}
	case errors.As(err, &ve):
		return protocol.Error{Code: protocol.CodeMalformed, Message: ve.Error()}
	case errors.Is(err, model.ErrUnknownAvatar):
		return protocol.Error{Code: protocol.CodeUnknownDragon, Message: err.Error()}
	case errors.Is(err, model.ErrNotFound):
		return protocol.Error{Code: protocol.CodeNotFound, Message: err.Error()}
	default:
		return protocol.Error{Code: protocol.CodeInternalError, Message: "internal error"}
	}
}

// ServeWS upgrades an authenticated request and runs the connection until
// it closes
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := h.newClient(conn, session, h.startPosition(r.Context(), session.UserID))
	if err := h.Register(client); err != nil {
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// startPosition resumes a user where they were last seen, or at the spawn point
func (h *Hub) startPosition(ctx context.Context, userID model.UserID) model.Position {
	if pos, ok := h.deps.Positions.Latest(userID); ok {
		return h.bounds.Clamp(pos)
	}
	user, err := h.deps.Sessions.GetUser(ctx, userID)
	if err != nil {
		h.logger.Warn("could not load last position", slog.String("user_id", string(userID)), slog.Any("error", err))
	} else if user.LastPosition != nil {
		return h.bounds.Clamp(*user.LastPosition)
	}
	return h.deps.World.SpawnPoint()
}
