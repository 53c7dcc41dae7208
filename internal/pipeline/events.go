package pipeline

import "time"

// Stage names a pipeline step.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageIntake     Stage = "intake"
	// StageAnalysis is the parallel Catalyst and Fire step.
	StageAnalysis  Stage = "analysis"
	StageSynthesis Stage = "synthesis"
	StageParse     Stage = "parse"
	StageHumanize  Stage = "humanize"
)

// StageStatus is the state a StageEvent reports.
type StageStatus string

const (
	StatusRunning  StageStatus = "running"
	StatusComplete StageStatus = "complete"
	StatusFailed   StageStatus = "failed"
	StatusSkipped  StageStatus = "skipped"
)

// StageEvent describes a stage transition.
type StageEvent struct {
	Stage    Stage
	Status   StageStatus
	Agents   []string
	Duration time.Duration
	// Notes carries parse warnings or skill fallback reasons.
	Notes []string
	Err   error
}

// Observer receives stage events. It is called synchronously from the run
// and must not block.
type Observer func(StageEvent)

func (p *Pipeline) emit(e StageEvent) {
	if p.observer != nil {
		p.observer(e)
	}
}
