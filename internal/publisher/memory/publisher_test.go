package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsJSON(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "runs", map[string]int{"updated": 2})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "runs", "done")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"updated":2}`, string(msgs[0].Data))
	assert.JSONEq(t, `"done"`, string(msgs[1].Data))

	msgs[0].Topic = "changed"
	assert.Equal(t, "runs", pub.Messages()[0].Topic)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "runs", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")

	boom := errors.New("unavailable")
	pub.FailWith(boom)
	_, err = pub.Publish(context.Background(), "runs", 1)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "runs", 1)
	assert.NoError(t, err)
}
