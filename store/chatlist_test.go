package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/fedchat/chat"
)

func chatListFixture(t *testing.T) *Store {
	t.Helper()
	s := New("fed1", 0)
	s.SetIdentity(chat.Member{ID: "alice@example.com", Username: "alice"}, nil)
	return s
}

func TestChatListGroupsByCounterpart(t *testing.T) {
	s := chatListFixture(t)

	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m1", SentAt: 100, SentBy: "alice@example.com", SentTo: "bob@example.com"}))
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m2", SentAt: 200, SentBy: "bob@example.com", SentTo: "alice@example.com"}))
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m3", SentAt: 150, SentBy: "carol@example.com", SentTo: "alice@example.com"}))

	list := s.ChatList()
	require.Len(t, list, 2)

	// Sorted descending by latest activity: bob (200) before carol (150).
	assert.Equal(t, "bob@example.com", list[0].ID)
	assert.Equal(t, "m2", list[0].LatestMessage.ID)
	assert.Equal(t, "carol@example.com", list[1].ID)

	// Participants accumulate across the whole chat, not just the
	// latest message.
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, list[0].MemberIDs)
}

func TestChatListIncludesEmptyGroups(t *testing.T) {
	s := chatListFixture(t)
	s.UpsertGroup(chat.Group{ID: "g1@muc.example.com", Name: "general", JoinedAt: 175})
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m1", SentAt: 200, SentBy: "bob@example.com", SentTo: "alice@example.com"}))
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m2", SentAt: 150, SentBy: "carol@example.com", SentTo: "alice@example.com"}))

	list := s.ChatList()
	require.Len(t, list, 3)

	// The message-less group sorts on its join time, between the two
	// direct chats.
	assert.Equal(t, "bob@example.com", list[0].ID)
	assert.Equal(t, "g1@muc.example.com", list[1].ID)
	assert.Nil(t, list[1].LatestMessage)
	assert.Equal(t, chat.KindGroup, list[1].Kind)
	assert.Equal(t, "carol@example.com", list[2].ID)
}

func TestChatListUnreadWatermark(t *testing.T) {
	s := chatListFixture(t)
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m1", SentAt: 100, SentBy: "bob@example.com", SentTo: "alice@example.com"}))

	list := s.ChatList()
	require.Len(t, list, 1)
	assert.True(t, list[0].Unread, "no read watermark yet")

	s.SetLastRead("bob@example.com", 100)
	list = s.ChatList()
	assert.False(t, list[0].Unread)

	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m2", SentAt: 180, SentBy: "bob@example.com", SentTo: "alice@example.com"}))
	list = s.ChatList()
	assert.True(t, list[0].Unread)
}

func TestChatListPaymentUnreadIndependent(t *testing.T) {
	s := chatListFixture(t)

	// The payment update rides on an older message; the chat's latest
	// message is read but the payment state change is not.
	withPayment := chat.Message{
		ID: "m1", SentAt: 100, SentBy: "bob@example.com", SentTo: "alice@example.com",
		Payment: &chat.Payment{Amount: 5, Recipient: "alice@example.com", Status: chat.PaymentPaid, UpdatedAt: 250},
	}
	require.NoError(t, s.UpsertMessage(withPayment))
	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m2", SentAt: 200, SentBy: "bob@example.com", SentTo: "alice@example.com"}))
	s.SetLastRead("bob@example.com", 200)

	list := s.ChatList()
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LatestPaymentUpdate)
	assert.Equal(t, "m1", list[0].LatestPaymentUpdate.ID)
	assert.Equal(t, "m2", list[0].LatestMessage.ID)
	assert.True(t, list[0].Unread, "unseen payment update must flag the chat unread")

	s.SetLastRead("bob@example.com", 250)
	list = s.ChatList()
	assert.False(t, list[0].Unread)
}

func TestChatListTracksNewestPaymentUpdate(t *testing.T) {
	s := chatListFixture(t)

	older := chat.Message{
		ID: "m1", SentAt: 100, SentBy: "bob@example.com", SentTo: "alice@example.com",
		Payment: &chat.Payment{Amount: 5, Recipient: "alice@example.com", Status: chat.PaymentAccepted, UpdatedAt: 110},
	}
	newer := chat.Message{
		ID: "m2", SentAt: 120, SentBy: "alice@example.com", SentTo: "bob@example.com",
		Payment: &chat.Payment{Amount: 9, Recipient: "bob@example.com", Status: chat.PaymentPaid, UpdatedAt: 300},
	}
	require.NoError(t, s.UpsertMessage(older))
	require.NoError(t, s.UpsertMessage(newer))

	list := s.ChatList()
	require.Len(t, list, 1)
	assert.Equal(t, "m2", list[0].LatestPaymentUpdate.ID)
}

func TestHasUnseenActivity(t *testing.T) {
	s := chatListFixture(t)
	assert.False(t, s.HasUnseenActivity())

	require.NoError(t, s.UpsertMessage(chat.Message{ID: "m1", SentAt: 100, SentBy: "bob@example.com", SentTo: "alice@example.com"}))
	assert.True(t, s.HasUnseenActivity())

	s.SetLastSeen(100)
	assert.False(t, s.HasUnseenActivity())

	// A payment update alone counts as unseen activity.
	update := chat.Message{
		ID: "m1", SentAt: 100, SentBy: "bob@example.com", SentTo: "alice@example.com",
		Payment: &chat.Payment{Amount: 5, Recipient: "alice@example.com", Status: chat.PaymentPaid, UpdatedAt: 170},
	}
	require.NoError(t, s.UpsertMessage(update))
	assert.True(t, s.HasUnseenActivity())
}
