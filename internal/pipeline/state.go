package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-leads/internal/model"
)

// ErrInvalidTransition is returned when a run tries to move backwards,
// skip a stage, or leave a terminal state.
var ErrInvalidTransition = eris.New("pipeline: invalid state transition")

// machine tracks the current stage of one run. The zero value is the
// state before fetching starts.
type machine struct {
	stage model.Stage
}

// advance moves to the next stage. Forward moves must be exactly one step.
// The empty terminal is reachable from any non-terminal stage.
func (m *machine) advance(to model.Stage) error {
	if m.stage.Terminal() {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s: run already finished", m.stage, to)
	}
	if to == model.StageEmpty {
		if m.stage == "" {
			return eris.Wrapf(ErrInvalidTransition, "start -> %s", to)
		}
		m.stage = to
		return nil
	}
	if to.Order() == 0 || to.Order() != m.stage.Order()+1 {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", stageName(m.stage), to)
	}
	m.stage = to
	return nil
}

func stageName(s model.Stage) string {
	if s == "" {
		return "start"
	}
	return string(s)
}
