package wire

// Protocol namespace strings. These are an external server contract and
// must be reproduced byte for byte.
const (
	NSRoster      = "jabber:iq:roster"
	NSMUC         = "http://jabber.org/protocol/muc"
	NSMUCUser     = "http://jabber.org/protocol/muc#user"
	NSMUCAdmin    = "http://jabber.org/protocol/muc#admin"
	NSMUCOwner    = "http://jabber.org/protocol/muc#owner"
	NSPubsub      = "http://jabber.org/protocol/pubsub"
	NSPubsubOwner = "http://jabber.org/protocol/pubsub#owner"
	NSPubsubEvent = "http://jabber.org/protocol/pubsub#event"
	NSArchive     = "urn:xmpp:mam:2"
	NSForward     = "urn:xmpp:forward:0"
	NSDataForms   = "jabber:x:data"
	NSRSM         = "http://jabber.org/protocol/rsm"
	NSEncrypted   = "eu.siacs.conversations.axolotl"
	NSJSON        = "urn:xmpp:json:0"
	NSPush        = "urn:xmpp:push:0"
	NSFraming     = "urn:ietf:params:xml:ns:xmpp-framing"
	NSSASL        = "urn:ietf:params:xml:ns:xmpp-sasl"
	NSBind        = "urn:ietf:params:xml:ns:xmpp-bind"
	NSStreamMgmt  = "urn:xmpp:sm:3"
)

// Room configuration form field variables.
const (
	FieldFormType          = "FORM_TYPE"
	FieldRoomName          = "muc#roomconfig_roomname"
	FieldModerated         = "muc#roomconfig_moderatedroom"
	FieldPersistent        = "muc#roomconfig_persistentroom"
	FieldBroadcastPresence = "muc#roomconfig_presencebroadcast"
)

// StatusRoomConfigChanged is the muc#user status code a room sends when
// its configuration changed and clients should refresh it.
const StatusRoomConfigChanged = "104"
