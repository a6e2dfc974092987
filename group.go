package fedchat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/crypto"
	"github.com/opd-ai/fedchat/wire"
)

// JoinGroup enters a group and records it locally. The group's current
// name is fetched best-effort from its server-side config.
func (c *Client) JoinGroup(ctx context.Context, groupID string) (chat.Group, error) {
	sess, err := c.session()
	if err != nil {
		return chat.Group{}, err
	}
	selfID := c.store.Snapshot().SelfID()
	if selfID == "" {
		return chat.Group{}, chat.ErrNotConnected
	}

	presence, err := wire.GroupPresence(wire.GroupPresenceArgs{
		GroupID:  groupID,
		SenderID: selfID,
	})
	if err != nil {
		return chat.Group{}, err
	}
	if err := sess.Send(presence); err != nil {
		return chat.Group{}, fmt.Errorf("failed to enter group %s: %w", groupID, err)
	}

	group := chat.Group{
		ID:       groupID,
		Name:     chat.LocalPart(groupID),
		JoinedAt: time.Now().Unix(),
	}
	if query, err := wire.RoomConfigRequest(groupID); err == nil {
		if resp, err := sess.Request(ctx, query); err == nil {
			if name := formFieldValue(resp, wire.FieldRoomName); name != "" {
				group.Name = name
			}
		}
	}

	c.store.UpsertGroup(group)
	c.emitGroup(group)
	return group, nil
}

// CreateGroup creates a persistent group with a fresh id under the
// configured group domain, configures it, and records the caller as its
// owner. A broadcast-only group is moderated so only privileged members
// post.
func (c *Client) CreateGroup(ctx context.Context, name string, broadcastOnly bool) (chat.Group, error) {
	if c.opts.GroupDomain == "" {
		return chat.Group{}, errors.New("no group domain configured")
	}
	sess, err := c.session()
	if err != nil {
		return chat.Group{}, err
	}
	selfID := c.store.Snapshot().SelfID()
	if selfID == "" {
		return chat.Group{}, chat.ErrNotConnected
	}

	// The room localpart is a stable digest of creator, name, and time,
	// not user-controlled text.
	localpart := crypto.DigestHex(selfID + "|" + name + "|" +
		strconv.FormatInt(time.Now().UnixNano(), 10))[:16]
	groupID := localpart + "@" + c.opts.GroupDomain

	presence, err := wire.GroupPresence(wire.GroupPresenceArgs{
		GroupID:  groupID,
		SenderID: selfID,
	})
	if err != nil {
		return chat.Group{}, err
	}
	if err := sess.Send(presence); err != nil {
		return chat.Group{}, fmt.Errorf("failed to create group %s: %w", groupID, err)
	}

	form, err := wire.RoomConfigForm(wire.RoomConfigArgs{
		GroupID:   groupID,
		Name:      &name,
		Moderated: &broadcastOnly,
	})
	if err != nil {
		return chat.Group{}, err
	}
	if _, err := sess.Request(ctx, form); err != nil {
		return chat.Group{}, fmt.Errorf("failed to configure group %s: %w", groupID, err)
	}

	group := chat.Group{
		ID:            groupID,
		Name:          name,
		JoinedAt:      time.Now().Unix(),
		BroadcastOnly: broadcastOnly,
	}
	c.store.UpsertGroup(group)
	c.store.SetAffiliation(groupID, chat.AffiliationOwner)
	c.store.SetRole(groupID, chat.RoleModerator)
	c.emitGroup(group)
	return group, nil
}

// LeaveGroup exits a group and removes it from local state together with
// its messages, role, affiliation, and read watermark.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	group, ok := c.store.GroupByID(groupID)
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrUnknownGroup, groupID)
	}
	sess, err := c.session()
	if err != nil {
		return err
	}

	presence, err := wire.LeavePresence(wire.GroupPresenceArgs{
		GroupID:  group.ID,
		SenderID: c.store.Snapshot().SelfID(),
	})
	if err != nil {
		return err
	}
	if err := sess.Send(presence); err != nil {
		return fmt.Errorf("failed to leave group %s: %w", groupID, err)
	}

	c.store.RemoveGroup(groupID)
	return nil
}

// RenameGroup changes a group's name through its server-side config.
// Only the group owner may rename.
func (c *Client) RenameGroup(ctx context.Context, groupID, name string) error {
	group, ok := c.store.GroupByID(groupID)
	if !ok {
		return fmt.Errorf("%w: %s", chat.ErrUnknownGroup, groupID)
	}
	if c.store.Snapshot().Affiliations[groupID] != chat.AffiliationOwner {
		return fmt.Errorf("%w: %s", chat.ErrNotGroupOwner, groupID)
	}
	sess, err := c.session()
	if err != nil {
		return err
	}

	form, err := wire.RoomConfigForm(wire.RoomConfigArgs{
		GroupID: groupID,
		Name:    &name,
	})
	if err != nil {
		return err
	}
	if _, err := sess.Request(ctx, form); err != nil {
		return fmt.Errorf("failed to rename group %s: %w", groupID, err)
	}

	group.Name = name
	c.store.UpsertGroup(group)
	c.emitGroup(group)
	return nil
}

// SetMemberAffiliation changes another member's standing within a group.
// Only the group owner may change affiliations.
func (c *Client) SetMemberAffiliation(ctx context.Context, groupID, memberID string, affiliation chat.Affiliation) error {
	if _, ok := c.store.GroupByID(groupID); !ok {
		return fmt.Errorf("%w: %s", chat.ErrUnknownGroup, groupID)
	}
	if _, ok := c.store.MemberByID(chat.BareAddress(memberID)); !ok {
		return fmt.Errorf("%w: %s", chat.ErrUnknownMember, memberID)
	}
	if c.store.Snapshot().Affiliations[groupID] != chat.AffiliationOwner {
		return fmt.Errorf("%w: %s", chat.ErrNotGroupOwner, groupID)
	}
	sess, err := c.session()
	if err != nil {
		return err
	}

	query, err := wire.AffiliationQuery(wire.AffiliationArgs{
		GroupID:     groupID,
		MemberID:    chat.BareAddress(memberID),
		Affiliation: affiliation,
	})
	if err != nil {
		return err
	}
	if _, err := sess.Request(ctx, query); err != nil {
		return fmt.Errorf("failed to set affiliation in %s: %w", groupID, err)
	}
	return nil
}
