package tools

import "errors"

// Builtins returns the registrations of every built-in tool.
func Builtins() []Registration {
	return []Registration{
		ReadFile(),
		WriteFile(),
		EditFile(),
		ListDir(),
		Glob(),
		Grep(),
		Bash(),
		Git(),
		TodoWrite(),
		TodoRead(),
		WebFetch(),
	}
}

// RegisterBuiltins adds every built-in tool to c.
func RegisterBuiltins(c *Catalog) error {
	var errs []error
	for _, reg := range Builtins() {
		if err := c.Register(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
