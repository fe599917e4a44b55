package botserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordChat(t *testing.T) {
	st, client := newTestBot(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertCommand(ctx, "!hi", "hey", "all"))

	lines := []struct{ user, msg string }{
		{"alice", "!hi there"},
		{"alice", "!hi"},
		{"bob", "hello"},
		{"alice", "!unknown"},
	}
	for _, l := range lines {
		id, err := RecordChat(ctx, st, l.user, l.msg, now)
		require.NoError(t, err)
		assert.Zero(t, id)
	}

	id, err := RecordChat(ctx, st, "bob", "!addquote  it works ", now)
	require.NoError(t, err)
	assert.Positive(t, id)

	s, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.TopChatter)
	assert.Equal(t, 3, s.TopChatCount)
	assert.Equal(t, "!hi", s.TopCommand)
	assert.Equal(t, 2, s.TopComCount)
	assert.Equal(t, 1, s.Quotes)

	quotes, err := client.Quotes(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	for _, q := range quotes {
		assert.Equal(t, "it works", q.Quote)
		assert.Equal(t, "bob", q.Submitter)
	}
}

func TestRecordChatRejectsEmptyUser(t *testing.T) {
	st, _ := newTestBot(t)
	_, err := RecordChat(context.Background(), st, "  ", "!hi", time.Now())
	assert.Error(t, err)
}

func TestRecordBan(t *testing.T) {
	st, client := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, RecordBan(ctx, st, "spammer", "links", time.Now()))
	assert.Error(t, RecordBan(ctx, st, "", "none", time.Now()))

	bans, err := client.BanHistory(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "spammer", bans[0].User)
	assert.Equal(t, "links", bans[0].Reason)
}
