package fedchat

import (
	"time"

	"github.com/opd-ai/fedchat/delivery"
	"github.com/opd-ai/fedchat/session"
	"github.com/opd-ai/fedchat/store"
)

// Options contains configuration options for creating a Client.
type Options struct {
	// GroupDomain is the room-service subdomain groups are addressed
	// at, e.g. "groups.chat.example.com".
	GroupDomain string

	// PushService is the push gateway address push tokens are enabled
	// against. Empty disables push registration.
	PushService string

	// DefaultGroups are federation-default group ids joined
	// automatically on connect when not yet in local state.
	DefaultGroups []string

	// MessageLimit caps local message retention per federation.
	MessageLimit int

	// PageSize is the archive backfill page size.
	PageSize int

	// LivenessTimeout is how long a probed stream may stay silent
	// before it is torn down and rebuilt.
	LivenessTimeout time.Duration

	// RequestTimeout bounds the connect-time best-effort queries (key
	// publish, push enable, group config). The protocol itself leaves
	// unanswered queries pending forever; callers supply the bound.
	RequestTimeout time.Duration

	// ResumePollInterval is how often the session polls for the
	// negotiated identity after a stream resume.
	ResumePollInterval time.Duration
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		MessageLimit:       store.DefaultMessageLimit,
		PageSize:           delivery.DefaultPageSize,
		LivenessTimeout:    session.DefaultLivenessTimeout,
		RequestTimeout:     10 * time.Second,
		ResumePollInterval: session.DefaultResumePollInterval,
	}
}
