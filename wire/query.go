package wire

import (
	"errors"
	"strconv"

	"github.com/opd-ai/fedchat/chat"
)

func iq(iqType, operation string) *Element {
	return New("iq", map[string]string{
		"id":   CorrelationID(operation),
		"type": iqType,
	})
}

// RosterQuery builds the contact-list query used for member discovery.
func RosterQuery() *Element {
	q := iq("get", "get-roster")
	q.AddChild(New("query", map[string]string{"xmlns": NSRoster}))
	return q
}

// ArchiveQueryArgs are the inputs for one page of a history backfill.
type ArchiveQueryArgs struct {
	PageSize int
	// After is the result-set cursor from the previous page, empty for
	// the first page.
	After string
}

// ArchiveQuery builds one paginated message-archive query.
func ArchiveQuery(args ArchiveQueryArgs) (*Element, error) {
	if args.PageSize <= 0 {
		return nil, errors.New("archive query requires a positive page size")
	}

	q := iq("set", "get-archive")

	query := New("query", map[string]string{
		"xmlns":   NSArchive,
		"queryid": q.Attr("id"),
	})

	form := New("x", map[string]string{"xmlns": NSDataForms, "type": "submit"})
	formType := New("field", map[string]string{"var": FieldFormType, "type": "hidden"})
	formType.AddChild(New("value", nil).SetText(NSArchive))
	form.AddChild(formType)
	query.AddChild(form)

	set := New("set", map[string]string{"xmlns": NSRSM})
	set.AddChild(New("max", nil).SetText(strconv.Itoa(args.PageSize)))
	if args.After != "" {
		set.AddChild(New("after", nil).SetText(args.After))
	}
	query.AddChild(set)

	q.AddChild(query)
	return q, nil
}

// PublishKeyArgs are the inputs for publishing a member's public key to
// their pubsub key node.
type PublishKeyArgs struct {
	Username     string
	PublicKeyHex string
}

// PublishKeyQuery builds the pubsub publish for the member's current
// public key.
func PublishKeyQuery(args PublishKeyArgs) (*Element, error) {
	if args.Username == "" || args.PublicKeyHex == "" {
		return nil, errors.New("key publish requires username and key")
	}

	q := iq("set", "publish-key")

	pubsub := New("pubsub", map[string]string{"xmlns": NSPubsub})
	publish := New("publish", map[string]string{"node": KeyNode(args.Username)})
	item := New("item", nil)
	item.AddChild(New("pubkey", nil).SetText(args.PublicKeyHex))
	publish.AddChild(item)
	pubsub.AddChild(publish)
	q.AddChild(pubsub)

	return q, nil
}

// FetchKeyArgs are the inputs for fetching another member's published
// public key.
type FetchKeyArgs struct {
	// MemberID is the key owner's federated address.
	MemberID string
}

// FetchKeyQuery builds the pubsub items query for a member's key node.
func FetchKeyQuery(args FetchKeyArgs) (*Element, error) {
	if args.MemberID == "" {
		return nil, errors.New("key fetch requires a member id")
	}

	q := iq("get", "fetch-key")
	q.SetAttr("to", chat.BareAddress(args.MemberID))

	pubsub := New("pubsub", map[string]string{"xmlns": NSPubsub})
	pubsub.AddChild(New("items", map[string]string{"node": KeyNode(chat.LocalPart(args.MemberID))}))
	q.AddChild(pubsub)

	return q, nil
}

// DeleteKeyNodeQuery builds the pubsub#owner delete for a member's key
// node, used when rotating the published key.
func DeleteKeyNodeQuery(username string) (*Element, error) {
	if username == "" {
		return nil, errors.New("key node delete requires a username")
	}

	q := iq("set", "delete-key-node")
	pubsub := New("pubsub", map[string]string{"xmlns": NSPubsubOwner})
	pubsub.AddChild(New("delete", map[string]string{"node": KeyNode(username)}))
	q.AddChild(pubsub)
	return q, nil
}

// RoomConfigRequest builds the owner query that fetches a group's current
// configuration.
func RoomConfigRequest(groupID string) (*Element, error) {
	if groupID == "" {
		return nil, errors.New("room config request requires a group id")
	}
	q := iq("get", "get-room-config")
	q.SetAttr("to", groupID)
	q.AddChild(New("query", map[string]string{"xmlns": NSMUCOwner}))
	return q, nil
}

// RoomConfigArgs are the inputs for the owner form that configures a
// group. Optional fields are included only when explicitly provided;
// room persistence is always forced on.
type RoomConfigArgs struct {
	GroupID           string
	Name              *string
	Moderated         *bool
	BroadcastPresence *bool
}

// RoomConfigForm builds the owner form submission configuring a group.
func RoomConfigForm(args RoomConfigArgs) (*Element, error) {
	if args.GroupID == "" {
		return nil, errors.New("room config requires a group id")
	}

	q := iq("set", "set-room-config")
	q.SetAttr("to", args.GroupID)

	query := New("query", map[string]string{"xmlns": NSMUCOwner})
	form := New("x", map[string]string{"xmlns": NSDataForms, "type": "submit"})

	formType := New("field", map[string]string{"var": FieldFormType})
	formType.AddChild(New("value", nil).SetText(NSMUCOwner + "#roomconfig"))
	form.AddChild(formType)

	addField := func(variable, value string) {
		field := New("field", map[string]string{"var": variable})
		field.AddChild(New("value", nil).SetText(value))
		form.AddChild(field)
	}

	addField(FieldPersistent, "1")
	if args.Name != nil {
		addField(FieldRoomName, *args.Name)
	}
	if args.Moderated != nil {
		addField(FieldModerated, boolField(*args.Moderated))
	}
	if args.BroadcastPresence != nil {
		addField(FieldBroadcastPresence, boolField(*args.BroadcastPresence))
	}

	query.AddChild(form)
	q.AddChild(query)
	return q, nil
}

// AffiliationArgs are the inputs for changing a member's affiliation with
// a group.
type AffiliationArgs struct {
	GroupID     string
	MemberID    string
	Affiliation chat.Affiliation
}

// AffiliationQuery builds the admin query that sets a member's group
// affiliation.
func AffiliationQuery(args AffiliationArgs) (*Element, error) {
	if args.GroupID == "" || args.MemberID == "" {
		return nil, errors.New("affiliation change requires group and member")
	}

	q := iq("set", "set-affiliation")
	q.SetAttr("to", args.GroupID)

	query := New("query", map[string]string{"xmlns": NSMUCAdmin})
	query.AddChild(New("item", map[string]string{
		"jid":         chat.BareAddress(args.MemberID),
		"affiliation": args.Affiliation.String(),
	}))
	q.AddChild(query)
	return q, nil
}

// EnablePushArgs are the inputs for registering a push-notification token
// with the server.
type EnablePushArgs struct {
	// Service is the push gateway address.
	Service string
	// Token is the device push token, carried as the node id.
	Token string
}

// EnablePushQuery builds the push-enable registration query.
func EnablePushQuery(args EnablePushArgs) (*Element, error) {
	if args.Service == "" || args.Token == "" {
		return nil, errors.New("push enable requires service and token")
	}

	q := iq("set", "enable-push")
	q.AddChild(New("enable", map[string]string{
		"xmlns": NSPush,
		"jid":   args.Service,
		"node":  args.Token,
	}))
	return q, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
