package delivery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/wire"
)

// Backfill pages through the server message archive starting from the
// stored cursor until the archive reports no further pages. The archived
// messages themselves arrive as ordinary stanzas and are applied by the
// session dispatch; this loop only drives pagination and advances the
// cursor.
//
// A failed run is retried once from an empty cursor. If the retry also
// fails, the final cursor is left untouched and ErrBackfillFailed wraps
// the cause.
func (o *Orchestrator) Backfill(ctx context.Context) (string, error) {
	start := o.store.Snapshot().LastFetchedMessageID

	cursor, err := o.backfillFrom(ctx, start)
	if err == nil {
		return cursor, nil
	}

	o.log.WithFields(logrus.Fields{
		"function": "Backfill",
		"cursor":   start,
	}).WithError(err).Warn("Backfill failed, retrying from scratch")

	o.store.SetCursor("")
	cursor, retryErr := o.backfillFrom(ctx, "")
	if retryErr != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrBackfillFailed, retryErr)
	}
	return cursor, nil
}

func (o *Orchestrator) backfillFrom(ctx context.Context, cursor string) (string, error) {
	for {
		query, err := wire.ArchiveQuery(wire.ArchiveQueryArgs{
			PageSize: o.pageSize,
			After:    cursor,
		})
		if err != nil {
			return "", err
		}

		resp, err := o.session.Request(ctx, query)
		if err != nil {
			return "", fmt.Errorf("archive page after %q failed: %w", cursor, err)
		}

		next := pageCursor(resp)
		switch {
		case next == "":
			// An empty page means the archive is exhausted; keep the
			// cursor we already had.
			return cursor, nil
		case next == cursor:
			// The server handed back the same watermark, so the last
			// page was final.
			return next, nil
		}

		cursor = next
		o.store.SetCursor(cursor)
	}
}

// pageCursor extracts the result-set watermark from an archive page
// response. Empty means the page carried no results.
func pageCursor(resp *wire.Element) string {
	fin := resp.Find("fin")
	if fin == nil {
		return ""
	}
	set := fin.ChildNS("set", wire.NSRSM)
	if set == nil {
		return ""
	}
	return set.ChildText("last")
}
