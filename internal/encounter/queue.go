package encounter

import (
	"fmt"
	"strings"
)

// Order selects where Commit places a finished encounter.
type Order int

const (
	// OrderCommit appends in the order commit markers arrive.
	OrderCommit Order = iota
	// OrderStartTime inserts by start time, keeping commit order for equal
	// times.
	OrderStartTime
)

// ParseOrder maps a config value to an Order. Empty means OrderCommit.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "commit":
		return OrderCommit, nil
	case "start_time":
		return OrderStartTime, nil
	default:
		return OrderCommit, fmt.Errorf("unknown queue order %q: expected commit or start_time", s)
	}
}

func (o Order) String() string {
	if o == OrderStartTime {
		return "start_time"
	}
	return "commit"
}

// Queue holds committed encounters in execution order plus at most one
// encounter still being assembled. It is not safe for concurrent use; the
// control loop owns it.
type Queue struct {
	encounters []*Encounter
	inProgress *Encounter
	order      Order
}

// NewQueue returns an empty queue using the given ordering.
func NewQueue(order Order) *Queue {
	return &Queue{order: order}
}

// Begin replaces the in-progress slot with a fresh encounter and returns it
// together with whatever encounter it displaced (nil if none).
func (q *Queue) Begin() (started, abandoned *Encounter) {
	abandoned = q.inProgress
	q.inProgress = New()
	return q.inProgress, abandoned
}

// InProgress returns the encounter being assembled, or nil.
func (q *Queue) InProgress() *Encounter { return q.inProgress }

// Abandon drops the in-progress encounter and returns it.
func (q *Queue) Abandon() *Encounter {
	e := q.inProgress
	q.inProgress = nil
	return e
}

// Commit moves the in-progress encounter into the ordered sequence and
// returns it. It is a no-op returning nil when nothing is in progress.
func (q *Queue) Commit() *Encounter {
	e := q.inProgress
	if e == nil {
		return nil
	}
	q.inProgress = nil

	if q.order == OrderStartTime {
		i := len(q.encounters)
		for i > 0 && e.Start.Before(q.encounters[i-1].Start) {
			i--
		}
		q.encounters = append(q.encounters, nil)
		copy(q.encounters[i+1:], q.encounters[i:])
		q.encounters[i] = e
		return e
	}

	q.encounters = append(q.encounters, e)
	return e
}

// Peek returns the head encounter without modifying the queue.
func (q *Queue) Peek() *Encounter {
	if len(q.encounters) == 0 {
		return nil
	}
	return q.encounters[0]
}

// PopFrontInstruction removes and returns the first instruction of the head
// encounter along with that encounter. Head encounters with no instructions
// left are discarded. ok is false when there is nothing to execute.
func (q *Queue) PopFrontInstruction() (in Instruction, from *Encounter, ok bool) {
	for len(q.encounters) > 0 {
		head := q.encounters[0]
		if len(head.Instructions) == 0 {
			q.dropHead()
			continue
		}
		in = head.Instructions[0]
		head.Instructions = head.Instructions[1:]
		if len(head.Instructions) == 0 {
			q.dropHead()
		}
		return in, head, true
	}
	return Instruction{}, nil, false
}

func (q *Queue) dropHead() {
	q.encounters[0] = nil
	q.encounters = q.encounters[1:]
}

// Len returns the number of committed encounters.
func (q *Queue) Len() int { return len(q.encounters) }

// Pending returns the number of committed instructions not yet executed.
func (q *Queue) Pending() int {
	n := 0
	for _, e := range q.encounters {
		n += len(e.Instructions)
	}
	return n
}

// Snapshot is a deep copy of the queue state for reporting.
type Snapshot struct {
	Order      string          `json:"order"`
	Encounters []EncounterView `json:"encounters"`
	InProgress *InProgressView `json:"in_progress,omitempty"`
}

// EncounterView is the reported form of a committed encounter.
type EncounterView struct {
	ID           string        `json:"id"`
	Start        string        `json:"start"`
	Instructions []Instruction `json:"instructions"`
}

// InProgressView is the reported form of the encounter being assembled.
type InProgressView struct {
	ID              string `json:"id"`
	TimestampDigits string `json:"timestamp_digits"`
	Instructions    int    `json:"instructions"`
}

// Snapshot copies the queue so it can be handed to another goroutine.
func (q *Queue) Snapshot() Snapshot {
	s := Snapshot{Order: q.order.String(), Encounters: make([]EncounterView, 0, len(q.encounters))}
	for _, e := range q.encounters {
		c := e.clone()
		s.Encounters = append(s.Encounters, EncounterView{
			ID:           c.ID.String(),
			Start:        c.Start.Digits(),
			Instructions: c.Instructions,
		})
	}
	if e := q.inProgress; e != nil {
		s.InProgress = &InProgressView{
			ID:              e.ID.String(),
			TimestampDigits: e.Start.Digits(),
			Instructions:    len(e.Instructions),
		}
	}
	return s
}
