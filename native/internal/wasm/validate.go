package wasm

import "fmt"

// Validate checks memory limits and export targets.
func (m *Module) Validate() error {
	for i := range m.Memories {
		if err := validateMemoryType(&m.Memories[i], i); err != nil {
			return err
		}
	}
	return m.validateExports()
}

func validateMemoryType(mem *MemoryType, idx int) error {
	maxPages := MemoryMaxPages32
	if mem.Limits.Memory64 {
		maxPages = MemoryMaxPages64
	}

	if mem.Limits.Shared && mem.Limits.Max == nil {
		return fmt.Errorf("memory %d: shared memory must have maximum limit", idx)
	}
	if mem.Limits.Min > maxPages {
		return fmt.Errorf("memory %d: min pages %d exceeds maximum %d", idx, mem.Limits.Min, maxPages)
	}
	if mem.Limits.Max != nil {
		if *mem.Limits.Max > maxPages {
			return fmt.Errorf("memory %d: max pages %d exceeds maximum %d", idx, *mem.Limits.Max, maxPages)
		}
		if *mem.Limits.Max < mem.Limits.Min {
			return fmt.Errorf("memory %d: max pages %d below min pages %d", idx, *mem.Limits.Max, mem.Limits.Min)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]struct{}, len(m.Exports))
	for _, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("duplicate export name %q", exp.Name)
		}
		seen[exp.Name] = struct{}{}

		switch exp.Kind {
		case KindMemory:
			if int(exp.Idx) >= len(m.Memories) {
				return fmt.Errorf("export %q references invalid memory index %d", exp.Name, exp.Idx)
			}
		default:
			return fmt.Errorf("export %q has unsupported kind %d", exp.Name, exp.Kind)
		}
	}
	return nil
}
