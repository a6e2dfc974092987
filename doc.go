// Package fedchat implements a stateful federated-chat protocol client:
// a persistent XML-stanza stream per federation carrying end-to-end
// encrypted direct messages, plaintext group messages, in-chat payment
// lifecycle updates, and server-side history backfill, reconciled into a
// bounded per-federation state store.
//
// # Getting Started
//
// Create a manager with the host application's credential/payment engine
// and a transport dialer, then connect a federation's client:
//
//	manager := fedchat.NewManager(engine, wstransport.NewDialer(serverURL), nil)
//	client := manager.Client(federationID)
//
//	client.OnMessage(func(msg chat.Message) {
//	    fmt.Printf("%s: %s\n", msg.SentBy, msg.Content)
//	})
//	client.OnStatusChange(func(status chat.ConnectionStatus) {
//	    fmt.Println("status:", status)
//	})
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Remove(federationID)
//
//	client.SendDirect(ctx, "bob@chat.example.com", "hi")
//
// Connecting runs the full online sequence automatically: presence,
// public-key publication, group re-entry, federation-default group
// joins, history backfill, and the flush of messages queued while
// offline.
//
// # Core Types
//
// The package defines several core types:
//
//   - [Manager]: registry of per-federation clients
//   - [Client]: one federation's store, session, and delivery paths
//   - [Options]: configuration for creating clients
//
// Messages that cannot be sent are kept with a queued status and resent
// in order on every reconnect. Groups, roles, and read watermarks are
// reconciled by id; the derived chat list and unread state come from
// [Client.ChatList] and the store snapshot.
//
// Subpackages: wire (protocol codec), crypto (message encryption), store
// (reconciliation state), session (stream session and liveness),
// delivery (send paths, backfill, flush), bridge (host boundary
// contracts), config (YAML configuration), wstransport (websocket
// transport).
package fedchat
