package core

// Scheduler decides the execution order of actions.
type Scheduler struct{}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Phases holds the actions of a pipeline split by phase.
// Main runs in declaration order and stops on the first failure.
// Final runs after Main terminates, whatever its outcome.
type Phases struct {
	Main  []Action
	Final []Action
}

// Phases partitions the actions of def, preserving declaration order within each phase.
func (s *Scheduler) Phases(def *PipelineDefinition) Phases {
	var p Phases
	for _, a := range def.Actions {
		if a.RunAlways {
			p.Final = append(p.Final, a)
		} else {
			p.Main = append(p.Main, a)
		}
	}
	return p
}

// PartitionActions is a shorthand for NewScheduler().Phases(def).
func PartitionActions(def *PipelineDefinition) Phases {
	return NewScheduler().Phases(def)
}
