// Package encounter holds the pointing data model: instructions grouped into
// time-tagged encounters, and the queue the executor drains.
package encounter

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrTimestampIncomplete = errors.New("encounter: start time not fully received")

// Instruction is one absolute azimuth/elevation pointing command in degrees.
type Instruction struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

func (i Instruction) String() string {
	return fmt.Sprintf("Azimuth = %.2f, Elevation = %.2f", i.Azimuth, i.Elevation)
}

// Encounter is one tracking pass: a start time and the instructions to run
// in order.
type Encounter struct {
	ID           uuid.UUID
	Start        Timestamp
	Instructions []Instruction
}

// New returns an empty encounter with a fresh ID and an unset start time.
func New() *Encounter {
	return &Encounter{ID: uuid.New()}
}

// Append adds an instruction to the tail. Instructions may only follow a
// complete start time.
func (e *Encounter) Append(in Instruction) error {
	if !e.Start.Complete() {
		return ErrTimestampIncomplete
	}
	e.Instructions = append(e.Instructions, in)
	return nil
}

// Len returns the number of instructions not yet executed.
func (e *Encounter) Len() int { return len(e.Instructions) }

func (e *Encounter) clone() *Encounter {
	c := *e
	c.Instructions = append([]Instruction(nil), e.Instructions...)
	return &c
}
