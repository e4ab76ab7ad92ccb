package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultMaxVars is the default capacity of a Vars store.
const DefaultMaxVars = 100

// ErrVarsFull is returned when setting a new variable in a full store.
var ErrVarsFull = errors.New("variable storage limit reached")

// Var is a shell variable. Exported variables are also present in the process
// environment so children inherit them.
type Var struct {
	Name     string
	Value    string
	Exported bool
}

func (v Var) String() string {
	scope := "local"
	if v.Exported {
		scope = "global"
	}
	return fmt.Sprintf("%s=%s (%s)", v.Name, v.Value, scope)
}

// Vars is a fixed capacity, insertion ordered variable store. Lookups fall
// back to the process environment.
type Vars struct {
	rw       sync.RWMutex
	vars     []Var
	capacity int

	// Process environment, swapped out in tests.
	getenv   func(string) (string, bool)
	setenv   func(string, string) error
	unsetenv func(string) error
}

// NewVars creates an empty store holding at most capacity variables.
func NewVars(capacity int) *Vars {
	if capacity <= 0 {
		capacity = DefaultMaxVars
	}
	return &Vars{
		capacity: capacity,
		getenv:   os.LookupEnv,
		setenv:   os.Setenv,
		unsetenv: os.Unsetenv,
	}
}

// Set creates or replaces a variable. Replacing an existing variable never
// fails for lack of space.
func (v *Vars) Set(name, value string, exported bool) error {
	v.rw.Lock()
	defer v.rw.Unlock()

	idx := v.indexLocked(name)
	if idx < 0 && len(v.vars) >= v.capacity {
		return fmt.Errorf("%w (%d variables)", ErrVarsFull, v.capacity)
	}

	if exported {
		if err := v.setenv(name, value); err != nil {
			return err
		}
	} else if idx >= 0 && v.vars[idx].Exported {
		if err := v.unsetenv(name); err != nil {
			return err
		}
	}

	entry := Var{Name: name, Value: value, Exported: exported}
	if idx < 0 {
		v.vars = append(v.vars, entry)
	} else {
		v.vars[idx] = entry
	}
	return nil
}

// Unset removes a variable, found is false if it didn't exist. The variable
// is removed even if clearing it from the environment fails.
func (v *Vars) Unset(name string) (found bool, err error) {
	v.rw.Lock()
	defer v.rw.Unlock()

	idx := v.indexLocked(name)
	if idx < 0 {
		return false, nil
	}
	if v.vars[idx].Exported {
		err = v.unsetenv(name)
	}
	v.vars = append(v.vars[:idx], v.vars[idx+1:]...)
	return true, err
}

// Lookup finds a shell variable, falling back to the environment.
func (v *Vars) Lookup(name string) (string, bool) {
	v.rw.RLock()
	defer v.rw.RUnlock()

	if idx := v.indexLocked(name); idx >= 0 {
		return v.vars[idx].Value, true
	}
	return v.getenv(name)
}

// List returns a copy of the shell variables in the order they were created.
func (v *Vars) List() []Var {
	v.rw.RLock()
	defer v.rw.RUnlock()

	out := make([]Var, len(v.vars))
	copy(out, v.vars)
	return out
}

// Len returns the number of shell variables.
func (v *Vars) Len() int {
	v.rw.RLock()
	defer v.rw.RUnlock()
	return len(v.vars)
}

// Expand replaces every token of the form $NAME with the value of NAME.
// Only whole tokens are expanded; unknown names are left as is.
func (v *Vars) Expand(argv []string) []string {
	out := make([]string, len(argv))
	for i, tok := range argv {
		out[i] = tok
		if len(tok) < 2 || !strings.HasPrefix(tok, "$") {
			continue
		}
		if value, ok := v.Lookup(tok[1:]); ok {
			out[i] = value
		}
	}
	return out
}

func (v *Vars) indexLocked(name string) int {
	for i, entry := range v.vars {
		if entry.Name == name {
			return i
		}
	}
	return -1
}
