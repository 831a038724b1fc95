package pipeline

import (
	"errors"
	"fmt"
)

// ApologyMessage is the only failure text shown to people asking questions.
const ApologyMessage = "Sorry, I encountered an error while processing your request with my internal tools."

// Stage names the pipeline step an Error came from.
type Stage string

const (
	StageAssemble    Stage = "assemble"
	StageOrchestrate Stage = "orchestrate"
	StageMemory      Stage = "memory"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// Error wraps a failure with the stage that produced it.
type Error struct {
	Stage Stage
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("pipeline %s failed", e.Stage)
	}
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StageOf returns the stage of a wrapped *Error, or "" if err is not one.
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// UserFacingMessage maps any pipeline error to the text shown to the asker.
// Internal details never leak into chat.
func UserFacingMessage(err error) string {
	if err == nil {
		return ""
	}
	return ApologyMessage
}
