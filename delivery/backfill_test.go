package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/fedchat/chat"
	"github.com/opd-ai/fedchat/wire"
)

// archivePage builds an archive query result whose result-set watermark
// is last; an empty last models an exhausted archive.
func archivePage(last string) *wire.Element {
	resp := wire.New("iq", map[string]string{"type": "result"})
	fin := wire.New("fin", map[string]string{"xmlns": wire.NSArchive})
	set := wire.New("set", map[string]string{"xmlns": wire.NSRSM})
	if last != "" {
		set.AddChild(wire.New("last", nil).SetText(last))
	}
	fin.AddChild(set)
	resp.AddChild(fin)
	return resp
}

func TestBackfillTerminatesOnRepeatedCursor(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)

	cursors := []string{"10", "20", "20"}
	sender.respond = func(*wire.Element) (*wire.Element, error) {
		page := archivePage(cursors[0])
		cursors = cursors[1:]
		return page, nil
	}

	cursor, err := o.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20", cursor)
	assert.Len(t, sender.requests, 3)
	assert.Equal(t, "20", st.Snapshot().LastFetchedMessageID)
}

func TestBackfillTerminatesOnEmptyPage(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)
	st.SetCursor("50")

	sender.respond = func(*wire.Element) (*wire.Element, error) {
		return archivePage(""), nil
	}

	cursor, err := o.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "50", cursor)
	assert.Len(t, sender.requests, 1)

	// The first request resumes from the stored cursor.
	set := sender.requests[0].Find("set")
	require.NotNil(t, set)
	assert.Equal(t, "50", set.ChildText("after"))
}

func TestBackfillRetriesOnceFromScratch(t *testing.T) {
	o, st, sender := newTestOrchestrator(t)
	st.SetCursor("50")

	calls := 0
	sender.respond = func(query *wire.Element) (*wire.Element, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("server timeout")
		}
		// The retry must start over, not resume.
		set := query.Find("set")
		require.NotNil(t, set)
		assert.Empty(t, set.ChildText("after"))
		return archivePage(""), nil
	}

	cursor, err := o.Backfill(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cursor)
	assert.Equal(t, 2, calls)
}

func TestBackfillRetryExhausted(t *testing.T) {
	o, _, sender := newTestOrchestrator(t)
	sender.respond = func(*wire.Element) (*wire.Element, error) {
		return nil, errors.New("server timeout")
	}

	_, err := o.Backfill(context.Background())
	assert.ErrorIs(t, err, chat.ErrBackfillFailed)
	assert.Len(t, sender.requests, 2)
}
