package pattern

// PassJoin routes a task with a single incoming flow: every arrival
// enables the task.
type PassJoin struct{}

// Arrive implements the JoinExecutor interface method.
func (PassJoin) Arrive(jctx *JoinContext) (*JoinResult, error) {
	return &JoinResult{Fire: true}, nil
}

// ANDJoin waits for one arrival on every incoming flow, then fires
// exactly once and resets for the next activation. A second arrival on
// an already-marked flow before the join fires is an error.
type ANDJoin struct{}

// Arrive implements the JoinExecutor interface method.
func (ANDJoin) Arrive(jctx *JoinContext) (*JoinResult, error) {
	arrivals := jctx.Board.andArrivals(jctx.Task.ID)
	if arrivals[jctx.From] {
		return nil, &DuplicateArrivalError{TaskID: jctx.Task.ID, From: jctx.From}
	}
	arrivals[jctx.From] = true
	if len(arrivals) < len(jctx.Incoming) {
		return &JoinResult{}, nil
	}
	jctx.Board.resetAndJoin(jctx.Task.ID)
	return &JoinResult{Fire: true}, nil
}

// XORJoin treats each arrival as a fresh activation and fires every
// time, with no synchronization state.
type XORJoin struct{}

// Arrive implements the JoinExecutor interface method.
func (XORJoin) Arrive(jctx *JoinContext) (*JoinResult, error) {
	return &JoinResult{Fire: true}, nil
}

// ORJoin synchronizes on exactly the branch subset its paired OR-split
// activated. Arrivals are correlated by the activation ID carried from
// the split; the join fires once every activated branch has arrived.
type ORJoin struct{}

// Arrive implements the JoinExecutor interface method.
func (ORJoin) Arrive(jctx *JoinContext) (*JoinResult, error) {
	a := jctx.Board.ActivationByID(jctx.ActivationID)
	if a == nil {
		return nil, &CorrelationNotFoundError{ActivationID: jctx.ActivationID, TaskID: jctx.Task.ID}
	}
	if !a.Activated[jctx.Branch] {
		return nil, &CorrelationNotFoundError{ActivationID: jctx.ActivationID, TaskID: jctx.Task.ID}
	}
	if a.Arrived[jctx.Branch] {
		return nil, &DuplicateArrivalError{TaskID: jctx.Task.ID, From: jctx.From}
	}
	a.Arrived[jctx.Branch] = true
	if !a.complete() {
		return &JoinResult{}, nil
	}
	jctx.Board.RetireActivation(a.ID)
	return &JoinResult{Fire: true}, nil
}

// Discriminator fires on the first arrival of an activation and
// absorbs the remaining fan-in minus one, then resets.
type Discriminator struct{}

// Arrive implements the JoinExecutor interface method.
func (Discriminator) Arrive(jctx *JoinContext) (*JoinResult, error) {
	s := jctx.Board.discriminator(jctx.Task.ID)
	s.arrived++
	fanIn := len(jctx.Incoming)
	if !s.fired {
		s.fired = true
		if s.arrived >= fanIn {
			jctx.Board.resetDiscriminator(jctx.Task.ID)
		}
		return &JoinResult{Fire: true}, nil
	}
	if s.arrived >= fanIn {
		jctx.Board.resetDiscriminator(jctx.Task.ID)
	}
	return &JoinResult{Absorbed: true}, nil
}
