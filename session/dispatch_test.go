package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/wire"
)

// buildEncryptedDirect builds the stanza Alice's client would send Bob.
func buildEncryptedDirect(t *testing.T, msg chat.Message, sender, recipient *crypto.KeyPair, from, to string) *wire.Element {
	t.Helper()

	plaintext, err := json.Marshal(msg)
	require.NoError(t, err)

	envelope, err := crypto.Encrypt(plaintext, recipient.Public, sender.Private)
	require.NoError(t, err)
	backup, err := crypto.Encrypt(plaintext, sender.Public, sender.Private)
	require.NoError(t, err)

	el, err := wire.DirectMessage(wire.DirectMessageArgs{
		ID:       msg.ID,
		From:     from,
		To:       to,
		Envelope: envelope,
		Backup:   backup,
	})
	require.NoError(t, err)
	return el
}

func TestDirectMessageRoundTrip(t *testing.T) {
	alice, err := crypto.DeriveKeyPair("alice-seed")
	require.NoError(t, err)
	bob, err := crypto.DeriveKeyPair("bob-seed")
	require.NoError(t, err)

	messages := make(chan chat.Message, 1)
	members := make(chan chat.Member, 2)

	// Bob's session: it knows Alice's published key.
	_, transport := newTestSession(t, Config{
		Keys: bob,
		ResolveKey: func(memberID string) (string, bool) {
			if memberID == "alice@example.com" {
				return alice.PublicHex(), true
			}
			return "", false
		},
		Handlers: Handlers{
			OnMessage:    func(m chat.Message) { messages <- m },
			OnMemberSeen: func(m chat.Member) { members <- m },
		},
	})
	transport.SetIdentity("bob@example.com/stream")

	sent := chat.Message{
		ID:      "msg-1",
		Content: "hi",
		SentAt:  1000,
		SentBy:  "alice@example.com",
		SentTo:  "bob@example.com",
	}
	transport.Inject(buildEncryptedDirect(t, sent, alice, bob, "alice@example.com/phone", "bob@example.com"))

	select {
	case got := <-messages:
		assert.Equal(t, "hi", got.Content)
		assert.Equal(t, "alice@example.com", got.SentBy)
		assert.Equal(t, "bob@example.com", got.SentTo)
		assert.Equal(t, chat.MessageSent, got.Status)
	case <-time.After(time.Second):
		t.Fatal("message never decrypted")
	}

	select {
	case member := <-members:
		assert.Equal(t, "alice@example.com", member.ID)
		assert.Equal(t, "alice", member.Username)
	case <-time.After(time.Second):
		t.Fatal("sender was never marked seen")
	}
}

func TestSelfSentMessageUsesBackupPayload(t *testing.T) {
	alice, err := crypto.DeriveKeyPair("alice-seed")
	require.NoError(t, err)
	bob, err := crypto.DeriveKeyPair("bob-seed")
	require.NoError(t, err)

	messages := make(chan chat.Message, 1)

	// Alice's own session receiving her archived sent message: the
	// primary payload was encrypted to Bob, only the backup is hers.
	_, transport := newTestSession(t, Config{
		Keys: alice,
		ResolveKey: func(string) (string, bool) { return "", false },
		Handlers: Handlers{
			OnMessage: func(m chat.Message) { messages <- m },
		},
	})
	transport.SetIdentity("alice@example.com/stream")

	sent := chat.Message{ID: "msg-2", Content: "archived", SentAt: 1000, SentBy: "alice@example.com", SentTo: "bob@example.com"}
	transport.Inject(buildEncryptedDirect(t, sent, alice, bob, "alice@example.com/phone", "bob@example.com"))

	select {
	case got := <-messages:
		assert.Equal(t, "archived", got.Content)
	case <-time.After(time.Second):
		t.Fatal("self-sent message never decrypted from backup payload")
	}
}

func TestUndecryptableMessageDroppedSilently(t *testing.T) {
	alice, _ := crypto.DeriveKeyPair("alice-seed")
	bob, _ := crypto.DeriveKeyPair("bob-seed")
	eve, _ := crypto.DeriveKeyPair("eve-seed")

	messages := make(chan chat.Message, 1)
	observed := make(chan struct{}, 4)

	// Bob resolves Eve's key for Alice's address, so decryption fails.
	_, transport := newTestSession(t, Config{
		Keys: bob,
		ResolveKey: func(string) (string, bool) { return eve.PublicHex(), true },
		OnAnyStanza: func() { observed <- struct{}{} },
		Handlers: Handlers{
			OnMessage: func(m chat.Message) { messages <- m },
		},
	})
	transport.SetIdentity("bob@example.com/stream")

	sent := chat.Message{ID: "msg-3", Content: "secret", SentAt: 1000, SentBy: "alice@example.com", SentTo: "bob@example.com"}
	transport.Inject(buildEncryptedDirect(t, sent, alice, bob, "alice@example.com/phone", "bob@example.com"))

	// The stanza is processed but no message event surfaces.
	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("stanza never processed")
	}
	select {
	case <-messages:
		t.Fatal("undecryptable message must be dropped, not emitted")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGroupConfigChangeEmitsRefresh(t *testing.T) {
	refreshes := make(chan string, 1)
	_, transport := newTestSession(t, Config{
		Handlers: Handlers{
			OnGroupRefresh: func(groupID string) { refreshes <- groupID },
		},
	})

	el := wire.New("message", map[string]string{"from": "g1@muc.example.com/system", "type": "groupchat"})
	x := wire.New("x", map[string]string{"xmlns": wire.NSMUCUser})
	x.AddChild(wire.New("status", map[string]string{"code": wire.StatusRoomConfigChanged}))
	el.AddChild(x)
	transport.Inject(el)

	select {
	case groupID := <-refreshes:
		assert.Equal(t, "g1@muc.example.com", groupID)
	case <-time.After(time.Second):
		t.Fatal("no group refresh event")
	}
}

func TestKeyPublishValidation(t *testing.T) {
	members := make(chan chat.Member, 1)
	_, transport := newTestSession(t, Config{
		Handlers: Handlers{
			OnMemberSeen: func(m chat.Member) { members <- m },
		},
	})

	publish := func(from, node string) *wire.Element {
		el := wire.New("message", map[string]string{"from": from, "type": "headline"})
		event := wire.New("event", map[string]string{"xmlns": wire.NSPubsubEvent})
		items := wire.New("items", map[string]string{"node": node})
		item := wire.New("item", nil)
		item.AddChild(wire.New("pubkey", nil).SetText("cafe01"))
		items.AddChild(item)
		event.AddChild(items)
		el.AddChild(event)
		return el
	}

	// Node id naming a different user: rejected.
	transport.Inject(publish("alice@example.com", wire.KeyNode("mallory")))
	select {
	case <-members:
		t.Fatal("mismatched key publish must be dropped")
	case <-time.After(50 * time.Millisecond):
	}

	// Matching node: applied.
	transport.Inject(publish("alice@example.com", wire.KeyNode("alice")))
	select {
	case member := <-members:
		assert.Equal(t, "alice@example.com", member.ID)
		assert.Equal(t, "cafe01", member.PublicKeyHex)
	case <-time.After(time.Second):
		t.Fatal("valid key publish never applied")
	}
}

func TestArchiveResultUnwrapsForwardedMessage(t *testing.T) {
	alice, _ := crypto.DeriveKeyPair("alice-seed")
	bob, _ := crypto.DeriveKeyPair("bob-seed")

	messages := make(chan chat.Message, 1)
	_, transport := newTestSession(t, Config{
		Keys: bob,
		ResolveKey: func(string) (string, bool) { return alice.PublicHex(), true },
		Handlers: Handlers{
			OnMessage: func(m chat.Message) { messages <- m },
		},
	})
	transport.SetIdentity("bob@example.com/stream")

	sent := chat.Message{ID: "old-1", Content: "from the archive", SentAt: 500, SentBy: "alice@example.com", SentTo: "bob@example.com"}
	inner := buildEncryptedDirect(t, sent, alice, bob, "alice@example.com/phone", "bob@example.com")

	outer := wire.New("message", map[string]string{"to": "bob@example.com"})
	result := wire.New("result", map[string]string{"xmlns": wire.NSArchive, "id": "arch-1"})
	forwarded := wire.New("forwarded", map[string]string{"xmlns": wire.NSForward})
	forwarded.AddChild(inner)
	result.AddChild(forwarded)
	outer.AddChild(result)
	transport.Inject(outer)

	select {
	case got := <-messages:
		assert.Equal(t, "old-1", got.ID)
		assert.Equal(t, "from the archive", got.Content)
	case <-time.After(time.Second):
		t.Fatal("archived message never surfaced")
	}
}

func TestArchiveResultSkipsErrorEntries(t *testing.T) {
	messages := make(chan chat.Message, 1)
	observed := make(chan struct{}, 2)
	_, transport := newTestSession(t, Config{
		OnAnyStanza: func() { observed <- struct{}{} },
		Handlers: Handlers{
			OnMessage: func(m chat.Message) { messages <- m },
		},
	})

	inner := wire.New("message", map[string]string{"from": "x@example.com", "type": "chat"})
	inner.AddChild(wire.New("error", map[string]string{"type": "cancel"}))

	outer := wire.New("message", nil)
	result := wire.New("result", map[string]string{"xmlns": wire.NSArchive, "id": "arch-2"})
	forwarded := wire.New("forwarded", map[string]string{"xmlns": wire.NSForward})
	forwarded.AddChild(inner)
	result.AddChild(forwarded)
	outer.AddChild(result)
	transport.Inject(outer)

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("stanza never processed")
	}
	select {
	case <-messages:
		t.Fatal("error-marked archive entry must be skipped")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenceRoleAndAffiliationForSelf(t *testing.T) {
	roles := make(chan chat.Role, 1)
	affiliations := make(chan chat.Affiliation, 1)

	_, transport := newTestSession(t, Config{
		Handlers: Handlers{
			OnRoleChange:        func(_ string, r chat.Role) { roles <- r },
			OnAffiliationChange: func(_ string, a chat.Affiliation) { affiliations <- a },
		},
	})
	transport.SetIdentity("alice@example.com/stream")

	el := wire.New("presence", map[string]string{"from": "g1@muc.example.com/alice"})
	x := wire.New("x", map[string]string{"xmlns": wire.NSMUCUser})
	x.AddChild(wire.New("item", map[string]string{
		"jid":         "alice@example.com/stream",
		"role":        "moderator",
		"affiliation": "owner",
	}))
	el.AddChild(x)
	transport.Inject(el)

	select {
	case r := <-roles:
		assert.Equal(t, chat.RoleModerator, r)
	case <-time.After(time.Second):
		t.Fatal("no role change event")
	}
	select {
	case a := <-affiliations:
		assert.Equal(t, chat.AffiliationOwner, a)
	case <-time.After(time.Second):
		t.Fatal("no affiliation change event")
	}
}

func TestPresenceForOthersIgnored(t *testing.T) {
	roles := make(chan chat.Role, 1)
	_, transport := newTestSession(t, Config{
		Handlers: Handlers{
			OnRoleChange: func(_ string, r chat.Role) { roles <- r },
		},
	})
	transport.SetIdentity("alice@example.com/stream")

	el := wire.New("presence", map[string]string{"from": "g1@muc.example.com/carol"})
	x := wire.New("x", map[string]string{"xmlns": wire.NSMUCUser})
	x.AddChild(wire.New("item", map[string]string{"jid": "carol@example.com", "role": "moderator"}))
	el.AddChild(x)
	transport.Inject(el)

	select {
	case <-roles:
		t.Fatal("another member's role must not emit a self role change")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRosterResultEmitsMembers(t *testing.T) {
	members := make(chan chat.Member, 4)
	_, transport := newTestSession(t, Config{
		Handlers: Handlers{
			OnMemberSeen: func(m chat.Member) { members <- m },
		},
	})

	el := wire.New("iq", map[string]string{"id": "get-roster-x", "type": "result"})
	query := wire.New("query", map[string]string{"xmlns": wire.NSRoster})
	query.AddChild(wire.New("item", map[string]string{"jid": "bob@example.com"}))
	query.AddChild(wire.New("item", map[string]string{"jid": "carol@example.com"}))
	el.AddChild(query)
	transport.Inject(el)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case member := <-members:
			seen[member.ID] = true
		case <-time.After(time.Second):
			t.Fatal("roster members never surfaced")
		}
	}
	assert.True(t, seen["bob@example.com"])
	assert.True(t, seen["carol@example.com"])
}
