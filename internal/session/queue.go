package session

// PendingCandidate is one remote ICE candidate buffered until the remote
// description is set.
type PendingCandidate struct {
	MLineIndex uint16
	Candidate  string
}

// CandidateQueue is a per-session FIFO. It is not safe for concurrent use on
// its own; the owning session's lock covers it.
type CandidateQueue struct {
	items []PendingCandidate
}

func (q *CandidateQueue) Push(mlineIndex uint16, candidate string) {
	q.items = append(q.items, PendingCandidate{MLineIndex: mlineIndex, Candidate: candidate})
}

// Drain returns the buffered candidates in arrival order and empties the
// queue.
func (q *CandidateQueue) Drain() []PendingCandidate {
	items := q.items
	q.items = nil
	return items
}

// Discard drops all buffered candidates unapplied and reports how many.
func (q *CandidateQueue) Discard() int {
	n := len(q.items)
	q.items = nil
	return n
}

func (q *CandidateQueue) Len() int {
	return len(q.items)
}
