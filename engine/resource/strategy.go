package resource

// Policy names an allocation strategy.
type Policy uint8

const (
	// PolicyDefault defers to the manager's current default policy.
	PolicyDefault Policy = iota

	// PolicyFastestAvailable picks the highest-speed available resource.
	PolicyFastestAvailable

	// PolicyLeastLoaded picks the resource with the lowest utilization.
	PolicyLeastLoaded

	// PolicyCapabilityMatch picks the available resource whose
	// capability set most tightly covers the task's requirements.
	PolicyCapabilityMatch

	// PolicyRoundRobin rotates through available resources.
	PolicyRoundRobin
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p <= PolicyRoundRobin
}

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyFastestAvailable:
		return "fastest_available"
	case PolicyLeastLoaded:
		return "least_loaded"
	case PolicyCapabilityMatch:
		return "capability_match"
	case PolicyRoundRobin:
		return "round_robin"
	}
	return "unknown"
}

func pickFastest(cands []*Resource) *Resource {
	var best *Resource
	for _, r := range cands {
		if best == nil || r.Speed > best.Speed {
			best = r
		}
	}
	return best
}

func pickLeastLoaded(cands []*Resource) *Resource {
	var best *Resource
	var bestUtil float64
	for _, r := range cands {
		u := r.utilization()
		if best == nil || u < bestUtil {
			best, bestUtil = r, u
		}
	}
	return best
}

// pickCapabilityMatch prefers the candidate with the fewest surplus
// capabilities so broadly-capable resources stay free for tasks that
// need them. Candidates are pre-filtered for required capabilities.
func pickCapabilityMatch(cands []*Resource, required []string) *Resource {
	var best *Resource
	var bestSurplus int
	for _, r := range cands {
		surplus := len(r.Capabilities) - len(required)
		if best == nil || surplus < bestSurplus {
			best, bestSurplus = r, surplus
		}
	}
	return best
}

func pickRoundRobin(cands []*Resource, counter uint64) *Resource {
	if len(cands) == 0 {
		return nil
	}
	return cands[counter%uint64(len(cands))]
}
