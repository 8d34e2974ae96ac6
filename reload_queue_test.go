package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReloadQueueCoalesces(t *testing.T) {
	q := newReloadQueue()
	q.enqueue("smtp")
	q.enqueue("smtp")
	q.enqueue("imap")

	require.Len(t, q.ch, 2, "repeated enqueue of the same name must coalesce to one entry")
}

func TestReloadQueueBackoffGrows(t *testing.T) {
	q := newReloadQueue()
	require.Equal(t, time.Duration(0), q.calculateBackoff("smtp"))

	q.recordFailure("smtp")
	first := q.calculateBackoff("smtp")
	require.Equal(t, backoffBase, first)

	q.recordFailure("smtp")
	second := q.calculateBackoff("smtp")
	require.Greater(t, second, first)

	q.resetFailures("smtp")
	require.Equal(t, time.Duration(0), q.calculateBackoff("smtp"))
}
