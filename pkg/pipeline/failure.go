package pipeline

import (
	"errors"
	"fmt"

	"relaybot/pkg/config"
)

// FailureKind classifies why a turn produced no reply.
type FailureKind string

const (
	TranslationUnavailable FailureKind = "translation_unavailable"
	GenerationUnavailable  FailureKind = "generation_unavailable"
	GenerationMalformed    FailureKind = "generation_malformed"
)

// Stage is the pipeline step that failed.
type Stage string

const (
	StageTranslateIn  Stage = "translate_in"
	StageGenerate     Stage = "generate"
	StageTranslateOut Stage = "translate_out"
)

// Failure is returned by Run when a gateway call fails.
type Failure struct {
	Kind  FailureKind
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage picks the fixed text shown to the user for err.
func UserMessage(msgs config.Messages, err error) string {
	var f *Failure
	if !errors.As(err, &f) {
		return msgs.GenericError
	}
	switch f.Stage {
	case StageTranslateIn:
		return msgs.TranslateInFailed
	case StageGenerate:
		return msgs.GenerationFailed
	case StageTranslateOut:
		return msgs.TranslateOutFailed
	}
	return msgs.GenericError
}
