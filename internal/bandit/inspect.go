package bandit

import (
	"fmt"
	"os"

	"github.com/fyrsmithlabs/modelrouter/internal/statestore"
)

// ReadThompsonState reads a Thompson state file without a router. Invalid
// entries are dropped the same way Load drops them.
func ReadThompsonState(path string) (map[string]ArmState, error) {
	var loaded map[string]ArmState
	found, err := statestore.LoadJSON(path, &loaded)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}

	out := make(map[string]ArmState, len(loaded))
	for name, s := range loaded {
		if validBetaParam(s.Alpha) && validBetaParam(s.Beta) {
			out[name] = s
		}
	}
	return out, nil
}

// ReadLinUCBState reads a LinUCB state file without a router and derives
// A⁻¹ and theta per arm. The dimension is taken from each arm's b vector;
// arms with inconsistent shapes are dropped. Updates is always zero since
// the file does not record it.
func ReadLinUCBState(path string) (map[string]ArmSnapshot, error) {
	var loaded map[string]linucbArmState
	found, err := statestore.LoadJSON(path, &loaded)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}

	out := make(map[string]ArmSnapshot, len(loaded))
	for name, s := range loaded {
		a, b, ok := decodeArmState(s, len(s.B))
		if !ok {
			continue
		}
		m := &armModel{a: a, b: b, aInv: invert(a)}
		out[name] = m.snapshot()
	}
	return out, nil
}
