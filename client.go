package fedchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/bridge"
	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/delivery"
	"github.com/opd-ai/fedchat/session"
	"github.com/opd-ai/fedchat/store"
	"github.com/opd-ai/fedchat/wire"
)

// MessageCallback is called for every stored inbound or outbound message.
type MessageCallback func(msg chat.Message)

// MemberSeenCallback is called whenever a stanza names a participant.
type MemberSeenCallback func(member chat.Member)

// GroupUpdateCallback is called when a group's local state changed.
type GroupUpdateCallback func(group chat.Group)

// StatusCallback is called on every connection status transition.
type StatusCallback func(status chat.ConnectionStatus)

// Client is the chat client for one federation. It owns the federation's
// reconciliation store, connection session, liveness monitor, and
// delivery orchestrator, and is safe for concurrent use.
type Client struct {
	federationID string
	opts         *Options
	engine       bridge.Engine
	dialer       session.Dialer
	store        *store.Store
	log          *logrus.Entry

	mu         sync.Mutex
	sess       *session.Session
	orch       *delivery.Orchestrator
	monitor    *session.Monitor
	keys       *crypto.KeyPair
	connecting bool

	cbMu         sync.RWMutex
	onMessage    MessageCallback
	onMemberSeen MemberSeenCallback
	onGroup      GroupUpdateCallback
	onStatus     StatusCallback
}

// NewClient creates a client for a federation. Nil options select
// defaults. The client starts offline; call Connect.
func NewClient(federationID string, engine bridge.Engine, dialer session.Dialer, opts *Options) *Client {
	if opts == nil {
		opts = NewOptions()
	}
	return &Client{
		federationID: federationID,
		opts:         opts,
		engine:       engine,
		dialer:       dialer,
		store:        store.New(federationID, opts.MessageLimit),
		log: logrus.WithFields(logrus.Fields{
			"component":  "client",
			"federation": federationID,
		}),
	}
}

// FederationID returns the federation this client serves.
func (c *Client) FederationID() string {
	return c.federationID
}

// Store exposes the federation's reconciliation store for read access
// and the external persistence boundary.
func (c *Client) Store() *store.Store {
	return c.store
}

// Status returns the current connection status.
func (c *Client) Status() chat.ConnectionStatus {
	return c.store.Snapshot().Status
}

// OnMessage registers the message callback.
func (c *Client) OnMessage(cb MessageCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onMessage = cb
}

// OnMemberSeen registers the member-seen callback.
func (c *Client) OnMemberSeen(cb MemberSeenCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onMemberSeen = cb
}

// OnGroupUpdate registers the group update callback.
func (c *Client) OnGroupUpdate(cb GroupUpdateCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onGroup = cb
}

// OnStatusChange registers the connection status callback.
func (c *Client) OnStatusChange(cb StatusCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onStatus = cb
}

// Connect fetches credentials, derives the encryption keys, dials the
// transport, and starts the session. It returns once the session's
// dispatch loop is running; the online transition itself is reported
// through OnStatusChange when stream negotiation completes.
func (c *Client) Connect(ctx context.Context) error {
	// One connect attempt at a time; a racing caller must not start a
	// second dial that would orphan the first transport.
	c.mu.Lock()
	if c.sess != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	c.store.SetStatus(chat.ConnectionConnecting, "")
	c.emitStatus(chat.ConnectionConnecting)

	creds, err := c.engine.GetCredentials(ctx, c.federationID)
	if err != nil {
		c.store.SetStatus(chat.ConnectionError, err.Error())
		c.emitStatus(chat.ConnectionError)
		return fmt.Errorf("failed to get credentials: %w", err)
	}

	keys, err := crypto.DeriveKeyPair(creds.KeypairSeed)
	if err != nil {
		c.store.SetStatus(chat.ConnectionError, err.Error())
		c.emitStatus(chat.ConnectionError)
		return fmt.Errorf("failed to derive keys: %w", err)
	}

	transport, err := c.dialer.Dial(ctx, creds)
	if err != nil {
		c.store.SetStatus(chat.ConnectionError, err.Error())
		c.emitStatus(chat.ConnectionError)
		return fmt.Errorf("failed to dial transport: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = keys
	c.monitor = session.NewMonitor(
		c.federationID,
		c.opts.LivenessTimeout,
		c.store.SetStreamHealthy,
		c.sendProbe,
		c.rebuild,
	)
	c.sess = session.New(session.Config{
		FederationID:       c.federationID,
		Keys:               keys,
		ResolveKey:         c.resolveKeyHex,
		Handlers:           c.handlers(),
		OnAnyStanza:        c.monitor.ObserveStanza,
		ResumePollInterval: c.opts.ResumePollInterval,
	}, transport)
	c.orch = delivery.New(c.federationID, c.store, c.sess, c.engine, c.opts.PageSize)
	return nil
}

// Disconnect stops the liveness monitor and tears the session down. The
// monitor is stopped before the session so no rebuild fires into the
// teardown.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	sess, monitor := c.sess, c.monitor
	c.sess, c.orch, c.monitor = nil, nil, nil
	c.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	var err error
	if sess != nil {
		err = sess.Close()
	}

	c.store.SetStatus(chat.ConnectionOffline, "")
	c.emitStatus(chat.ConnectionOffline)
	return err
}

// CheckLiveness marks the stream suspect and probes it. If nothing at
// all arrives within the liveness timeout the session is torn down and
// rebuilt.
func (c *Client) CheckLiveness() {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor != nil {
		monitor.SuspectStale()
	}
}

// SendDirect sends an encrypted direct message.
func (c *Client) SendDirect(ctx context.Context, recipientID, content string) (chat.Message, error) {
	orch, err := c.orchestrator()
	if err != nil {
		return chat.Message{}, err
	}
	return orch.SendDirect(ctx, recipientID, content)
}

// SendGroup sends a plaintext group message.
func (c *Client) SendGroup(ctx context.Context, groupID, content string) (chat.Message, error) {
	orch, err := c.orchestrator()
	if err != nil {
		return chat.Message{}, err
	}
	return orch.SendGroup(ctx, groupID, content)
}

// UpdatePayment applies a payment action to a stored message and sends
// the update to the counterparty.
func (c *Client) UpdatePayment(ctx context.Context, messageID string, action chat.PaymentAction) (chat.Message, error) {
	orch, err := c.orchestrator()
	if err != nil {
		return chat.Message{}, err
	}
	return orch.UpdatePayment(ctx, messageID, action)
}

// ChatList returns the derived chat list, newest activity first.
func (c *Client) ChatList() []store.ChatEntry {
	return c.store.ChatList()
}

// MarkChatRead records that the user has read a chat up to now.
func (c *Client) MarkChatRead(chatID string) {
	c.store.SetLastRead(chatID, time.Now().Unix())
}

// MarkSeen advances the global activity watermark.
func (c *Client) MarkSeen() {
	c.store.SetLastSeen(time.Now().Unix())
}

// SetPushToken stores a device push token and, when online, registers it
// with the push gateway. Offline registration is retried on the next
// connect.
func (c *Client) SetPushToken(ctx context.Context, token string) error {
	c.store.SetPushToken(token)

	sess, err := c.session()
	if err != nil || sess.Status() != chat.ConnectionOnline {
		return nil
	}
	return c.enablePush(ctx, sess, token)
}

func (c *Client) enablePush(ctx context.Context, sess *session.Session, token string) error {
	if c.opts.PushService == "" || token == "" {
		return nil
	}
	query, err := wire.EnablePushQuery(wire.EnablePushArgs{
		Service: c.opts.PushService,
		Token:   token,
	})
	if err != nil {
		return err
	}
	_, err = sess.Request(ctx, query)
	return err
}

func (c *Client) session() (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, chat.ErrNotConnected
	}
	return c.sess, nil
}

func (c *Client) orchestrator() (*delivery.Orchestrator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orch == nil {
		return nil, chat.ErrNotConnected
	}
	return c.orch, nil
}

// resolveKeyHex is the session's key lookup into local state.
func (c *Client) resolveKeyHex(memberID string) (string, bool) {
	member, ok := c.store.MemberByID(chat.BareAddress(memberID))
	if !ok || member.PublicKeyHex == "" {
		return "", false
	}
	return member.PublicKeyHex, true
}

func (c *Client) sendProbe() error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	return sess.Send(wire.ProbePresence())
}

// rebuild is the liveness monitor's recovery path: full teardown, then a
// fresh connect.
func (c *Client) rebuild() {
	c.log.WithField("function", "rebuild").Warn("Stream presumed dead, rebuilding session")
	if err := c.Disconnect(); err != nil {
		c.log.WithField("function", "rebuild").WithError(err).Debug("Teardown error during rebuild")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		c.log.WithField("function", "rebuild").WithError(err).Error("Session rebuild failed")
	}
}

func (c *Client) handlers() session.Handlers {
	return session.Handlers{
		OnStatus: func(status chat.ConnectionStatus, err error) {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			c.store.SetStatus(status, msg)
			c.emitStatus(status)
		},
		OnOnline: func(identity string) {
			// Requests correlate through the dispatch goroutine this
			// handler runs on, so the online sequence gets its own.
			go c.onOnline(identity)
		},
		OnMessage: func(msg chat.Message) {
			if err := c.store.UpsertMessage(msg); err != nil {
				c.log.WithFields(logrus.Fields{
					"function":   "OnMessage",
					"message_id": msg.ID,
				}).WithError(err).Warn("Dropping unstorable message")
				return
			}
			c.cbMu.RLock()
			cb := c.onMessage
			c.cbMu.RUnlock()
			if cb != nil {
				cb(msg)
			}
		},
		OnMemberSeen: func(member chat.Member) {
			c.store.UpsertMember(member)
			c.cbMu.RLock()
			cb := c.onMemberSeen
			c.cbMu.RUnlock()
			if cb != nil {
				cb(member)
			}
		},
		OnGroupRefresh: func(groupID string) {
			go c.refreshGroup(groupID)
		},
		OnRoleChange: func(groupID string, role chat.Role) {
			c.store.SetRole(groupID, role)
		},
		OnAffiliationChange: func(groupID string, affiliation chat.Affiliation) {
			c.store.SetAffiliation(groupID, affiliation)
		},
	}
}

func (c *Client) emitStatus(status chat.ConnectionStatus) {
	c.cbMu.RLock()
	cb := c.onStatus
	c.cbMu.RUnlock()
	if cb != nil {
		cb(status)
	}
}

func (c *Client) emitGroup(group chat.Group) {
	c.cbMu.RLock()
	cb := c.onGroup
	c.cbMu.RUnlock()
	if cb != nil {
		cb(group)
	}
}

// onOnline runs the post-connect sequence: identity self-correction,
// initial presence, best-effort key and push-token publication, group
// re-entry, default-group join, history backfill, and the queued flush.
func (c *Client) onOnline(identity string) {
	c.mu.Lock()
	sess, orch, keys := c.sess, c.orch, c.keys
	c.mu.Unlock()
	if sess == nil || orch == nil {
		return
	}

	log := c.log.WithField("function", "onOnline")

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()

	c.correctIdentity(ctx, sess, identity, keys)

	if err := sess.Send(wire.InitialPresence()); err != nil {
		log.WithError(err).Warn("Initial presence failed")
	}

	// The roster response feeds the members-seen dispatch path.
	if err := sess.Send(wire.RosterQuery()); err != nil {
		log.WithError(err).Warn("Roster fetch failed")
	}

	me := c.store.Snapshot().Me
	if me != nil && keys != nil {
		c.publishKey(ctx, sess, me.Username, keys)
	}

	if token := c.store.Snapshot().PushToken; token != "" {
		if err := c.enablePush(ctx, sess, token); err != nil {
			log.WithError(err).Warn("Push token registration failed")
		}
	}

	go func() {
		bctx, bcancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer bcancel()
		if _, err := orch.Backfill(bctx); err != nil {
			log.WithError(err).Error("History backfill failed")
		}
	}()

	c.reenterGroups(ctx, sess)
	c.joinDefaultGroups(ctx)

	if err := orch.FlushQueued(ctx); err != nil {
		log.WithError(err).Warn("Queued flush aborted")
	}
}

// correctIdentity reconciles the cached member against the negotiated
// stream address. A drift means the locally derived address was wrong;
// the negotiated one wins, the stale key node is retired, and the new
// username is backed up with the credentials.
func (c *Client) correctIdentity(ctx context.Context, sess *session.Session, identity string, keys *crypto.KeyPair) {
	bare := chat.BareAddress(identity)
	if bare == "" {
		return
	}

	me := c.store.Snapshot().Me
	if me != nil && me.ID == bare {
		return
	}

	if me != nil && me.Username != chat.LocalPart(bare) {
		if query, err := wire.DeleteKeyNodeQuery(me.Username); err == nil {
			if _, err := sess.Request(ctx, query); err != nil {
				c.log.WithFields(logrus.Fields{
					"function": "correctIdentity",
					"username": me.Username,
				}).WithError(err).Warn("Stale key node deletion failed")
			}
		}
	}

	member := chat.Member{
		ID:       bare,
		Username: chat.LocalPart(bare),
	}
	if keys != nil {
		member.PublicKeyHex = keys.PublicHex()
	}
	c.store.SetIdentity(member, keys)

	if err := c.engine.BackupUsername(ctx, member.Username, c.federationID); err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "correctIdentity",
			"username": member.Username,
		}).WithError(err).Warn("Username backup failed")
	}
}

// publishKey publishes the member's public key, best effort.
func (c *Client) publishKey(ctx context.Context, sess *session.Session, username string, keys *crypto.KeyPair) {
	query, err := wire.PublishKeyQuery(wire.PublishKeyArgs{
		Username:     username,
		PublicKeyHex: keys.PublicHex(),
	})
	if err == nil {
		_, err = sess.Request(ctx, query)
	}
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "publishKey",
			"pubkey":   keys.PublicHex()[:8],
		}).WithError(err).Warn("Key publish failed")
	}
}

// reenterGroups re-sends presence to every known group so the server
// resumes routing, and refreshes each group's config to catch name drift.
func (c *Client) reenterGroups(ctx context.Context, sess *session.Session) {
	selfID := c.store.Snapshot().SelfID()
	for _, group := range c.store.Snapshot().Groups {
		presence, err := wire.GroupPresence(wire.GroupPresenceArgs{
			GroupID:  group.ID,
			SenderID: selfID,
		})
		if err == nil {
			err = sess.Send(presence)
		}
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"function": "reenterGroups",
				"group_id": group.ID,
			}).WithError(err).Warn("Group re-entry failed")
			continue
		}
		c.refreshGroupCtx(ctx, group.ID)
	}
}

func (c *Client) joinDefaultGroups(ctx context.Context) {
	for _, groupID := range c.opts.DefaultGroups {
		if _, ok := c.store.GroupByID(groupID); ok {
			continue
		}
		if _, err := c.JoinGroup(ctx, groupID); err != nil {
			c.log.WithFields(logrus.Fields{
				"function": "joinDefaultGroups",
				"group_id": groupID,
			}).WithError(err).Warn("Default group join failed")
		}
	}
}

// refreshGroup fetches a group's server-side config and merges changed
// metadata. It is the reaction to a room-config-changed status code.
func (c *Client) refreshGroup(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	c.refreshGroupCtx(ctx, groupID)
}

func (c *Client) refreshGroupCtx(ctx context.Context, groupID string) {
	sess, err := c.session()
	if err != nil {
		return
	}

	query, err := wire.RoomConfigRequest(groupID)
	if err != nil {
		return
	}
	resp, err := sess.Request(ctx, query)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "refreshGroupCtx",
			"group_id": groupID,
		}).WithError(err).Warn("Group config fetch failed")
		return
	}

	name := formFieldValue(resp, wire.FieldRoomName)
	group, ok := c.store.GroupByID(groupID)
	if !ok {
		return
	}
	if name == "" || name == group.Name {
		return
	}

	group.Name = name
	c.store.UpsertGroup(group)
	c.emitGroup(group)
}

// formFieldValue walks a stanza for a data-form field and returns its
// first value, or "".
func formFieldValue(el *wire.Element, field string) string {
	if el.Name == "field" && el.Attr("var") == field {
		return el.ChildText("value")
	}
	for _, child := range el.Children {
		if v := formFieldValue(child, field); v != "" {
			return v
		}
	}
	return ""
}
