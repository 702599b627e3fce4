package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateQueueOrder(t *testing.T) {
	var q CandidateQueue
	q.Push(0, "first")
	q.Push(1, "second")
	q.Push(0, "third")
	assert.Equal(t, 3, q.Len())

	drained := q.Drain()
	assert.Equal(t, []PendingCandidate{
		{MLineIndex: 0, Candidate: "first"},
		{MLineIndex: 1, Candidate: "second"},
		{MLineIndex: 0, Candidate: "third"},
	}, drained)
	assert.Equal(t, 0, q.Len())

	// A second drain yields nothing; nothing is delivered twice.
	assert.Empty(t, q.Drain())
}

func TestCandidateQueueDiscard(t *testing.T) {
	var q CandidateQueue
	q.Push(0, "first")
	q.Push(0, "second")

	assert.Equal(t, 2, q.Discard())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Discard())
}
