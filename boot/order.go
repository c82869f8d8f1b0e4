package boot

import (
	"fmt"
	"maps"
	"slices"

	"github.com/GoCodeAlone/modhooks"
)

// resolveOrder sorts targets so every module comes after the targets it
// depends on. Dependencies outside targets are left for activation to
// reject. Members of a dependency cycle are left out of the order and
// reported with ErrCircularDependency.
func resolveOrder(byID map[string]modhooks.ModuleDescriptor, targets []string) ([]string, map[string]error) {
	wanted := make(map[string]bool, len(targets))
	for _, id := range targets {
		wanted[id] = true
	}
	nodes := slices.Sorted(maps.Keys(wanted))

	var (
		result  []string
		stack   []string
		visited = make(map[string]bool)
		temp    = make(map[string]bool)
		cyclic  = make(map[string]error)
	)

	var visit func(string)
	visit = func(node string) {
		if temp[node] {
			start := slices.Index(stack, node)
			cycle := append(slices.Clone(stack[start:]), node)
			for _, id := range stack[start:] {
				cyclic[id] = fmt.Errorf("%w: %v", modhooks.ErrCircularDependency, cycle)
			}
			return
		}
		if visited[node] {
			return
		}
		temp[node] = true
		stack = append(stack, node)

		for _, dep := range byID[node].Dependencies {
			if wanted[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		temp[node] = false
		visited[node] = true
		if _, bad := cyclic[node]; !bad {
			result = append(result, node)
		}
	}

	for _, node := range nodes {
		visit(node)
	}
	return result, cyclic
}
