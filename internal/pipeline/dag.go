package pipeline

import "fmt"

// ValidateDAG checks that every dependency name refers to a known step and
// that dependencies form no cycle, via the same DFS visited/recStack style
// used elsewhere in this corpus for dependency graphs.
func ValidateDAG(steps []Step) error {
	byName := make(map[string]*Step, len(steps))
	for i := range steps {
		byName[steps[i].Name] = &steps[i]
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
		}
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var detectCycle func(name string) error
	detectCycle = func(name string) error {
		visited[name] = true
		recStack[name] = true
		for _, dep := range byName[name].Dependencies {
			if !visited[dep] {
				if err := detectCycle(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				return fmt.Errorf("cycle detected: step %q depends on %q", name, dep)
			}
		}
		recStack[name] = false
		return nil
	}

	for _, s := range steps {
		if !visited[s.Name] {
			if err := detectCycle(s.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalSort returns steps ordered so each step follows every one of
// its dependencies. Neither the config loader nor the engine calls it: the
// live engine tick always walks Steps in configured declaration order, per
// the Clock design's tie-break rule, regardless of this ordering.
func TopologicalSort(steps []Step) ([]Step, error) {
	if err := ValidateDAG(steps); err != nil {
		return nil, err
	}

	byName := make(map[string]*Step, len(steps))
	for i := range steps {
		byName[steps[i].Name] = &steps[i]
	}

	visited := make(map[string]bool)
	result := make([]Step, 0, len(steps))

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		visited[name] = true
		for _, dep := range byName[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		result = append(result, *byName[name])
		return nil
	}

	for _, s := range steps {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}
	return result, nil
}
