package scheduler

import (
	"github.com/devrev/cryptgate/internal/model"
)

// eligible filters instances that can serve the role, are not excluded, and
// are not known-unhealthy. Unknown counts as available so routing works
// before the first probe completes; the live attempt sorts out the truth.
func eligible(
	instances []model.BackendInstance,
	healthMap map[string]model.HealthState,
	role model.InstanceRole,
	exclude map[string]bool,
) []model.BackendInstance {
	out := make([]model.BackendInstance, 0, len(instances))
	for _, inst := range instances {
		if !inst.Role.Serves(role) {
			continue
		}
		if exclude[inst.ID] {
			continue
		}
		if healthMap[inst.ID] == model.HealthUnhealthy {
			continue
		}
		out = append(out, inst)
	}
	return out
}

// Select chooses a backend instance for the given role. It is a pure
// function of (strategy, instances, health map, cursor, exclusions) so
// routing decisions are unit-testable without network I/O.
func Select(
	strategy model.Strategy,
	instances []model.BackendInstance,
	healthMap map[string]model.HealthState,
	cursor uint64,
	role model.InstanceRole,
	exclude map[string]bool,
) (model.BackendInstance, bool) {
	switch strategy {
	case model.StrategySingle:
		// The one configured instance serves both roles regardless of tag
		for _, inst := range instances {
			if exclude[inst.ID] || healthMap[inst.ID] == model.HealthUnhealthy {
				continue
			}
			return inst, true
		}
		return model.BackendInstance{}, false

	case model.StrategyReadWriteSplit:
		candidates := eligible(instances, healthMap, role, exclude)
		if len(candidates) == 0 && role == model.RoleRead {
			// No distinct read instance: reads fall back to the write side
			candidates = eligible(instances, healthMap, model.RoleWrite, exclude)
		}
		if len(candidates) == 0 {
			return model.BackendInstance{}, false
		}
		return candidates[0], true

	case model.StrategyLoadBalance:
		candidates := eligible(instances, healthMap, role, exclude)
		if len(candidates) == 0 {
			return model.BackendInstance{}, false
		}
		return candidates[cursor%uint64(len(candidates))], true

	default:
		return model.BackendInstance{}, false
	}
}
