package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ahalstead/caseng/engine/resource"

	"github.com/micromdm/nanolib/log"
)

// parsePolicy maps a policy name to its constant.
func parsePolicy(name string) (resource.Policy, error) {
	for _, p := range []resource.Policy{
		resource.PolicyFastestAvailable,
		resource.PolicyLeastLoaded,
		resource.PolicyCapabilityMatch,
		resource.PolicyRoundRobin,
	} {
		if p.String() == name {
			return p, nil
		}
	}
	return resource.PolicyDefault, fmt.Errorf("unknown policy: %s", name)
}

// parseResources builds the resource manager from a comma-separated
// list of resource specs of the form "id:concurrency[:cpu[:memory]]".
// Omitted or zero ceilings are unlimited.
func parseResources(specs, policy string, adaptive bool, logger log.Logger) (*resource.Manager, error) {
	var resources []*resource.Resource
	for _, spec := range strings.Split(specs, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.Split(spec, ":")
		r := &resource.Resource{ID: parts[0]}
		if r.ID == "" {
			return nil, fmt.Errorf("resource spec missing id: %q", spec)
		}
		ceilings := []*int64{&r.ConcurrencyCeiling, &r.CPUCeiling, &r.MemoryCeiling}
		for i, part := range parts[1:] {
			if i >= len(ceilings) {
				return nil, fmt.Errorf("too many fields in resource spec: %q", spec)
			}
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing resource spec %q: %w", spec, err)
			}
			*ceilings[i] = n
		}
		resources = append(resources, r)
	}
	if len(resources) < 1 {
		return nil, fmt.Errorf("no resources in spec: %q", specs)
	}

	p, err := parsePolicy(policy)
	if err != nil {
		return nil, err
	}

	opts := []resource.Option{
		resource.WithLogger(logger),
		resource.WithDefaultPolicy(p),
	}
	if adaptive {
		opts = append(opts, resource.WithSelector(resource.NewSelector()))
	}
	return resource.New(resource.NewPool(resources), opts...), nil
}
