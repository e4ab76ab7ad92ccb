package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEnv map[string]string

func newTestVars(capacity int) (*Vars, fakeEnv) {
	env := fakeEnv{"HOME": "/home/user"}
	vars := NewVars(capacity)
	vars.getenv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	vars.setenv = func(k, v string) error {
		env[k] = v
		return nil
	}
	vars.unsetenv = func(k string) error {
		delete(env, k)
		return nil
	}
	return vars, env
}

func TestVars_SetLookup(t *testing.T) {
	vars, env := newTestVars(10)

	assert.Nil(t, vars.Set("A", "1", false))
	assert.Nil(t, vars.Set("B", "2", true))

	value, ok := vars.Lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	assert.Equal(t, "2", env["B"], "exported variables reach the environment")
	_, ok = env["A"]
	assert.False(t, ok, "local variables stay local")

	value, ok = vars.Lookup("HOME")
	assert.True(t, ok)
	assert.Equal(t, "/home/user", value)

	_, ok = vars.Lookup("MISSING")
	assert.False(t, ok)
}

func TestVars_Capacity(t *testing.T) {
	vars, _ := newTestVars(2)

	assert.Nil(t, vars.Set("A", "1", false))
	assert.Nil(t, vars.Set("B", "2", false))
	assert.True(t, errors.Is(vars.Set("C", "3", false), ErrVarsFull))

	// Updating in place is always allowed.
	assert.Nil(t, vars.Set("A", "changed", true))
	assert.Equal(t, []Var{
		{Name: "A", Value: "changed", Exported: true},
		{Name: "B", Value: "2"},
	}, vars.List())

	found, err := vars.Unset("B")
	assert.True(t, found)
	assert.Nil(t, err)
	assert.Nil(t, vars.Set("C", "3", false))
	assert.Equal(t, 2, vars.Len())
}

func TestVars_Unset(t *testing.T) {
	vars, env := newTestVars(10)
	vars.Set("A", "1", true)

	found, err := vars.Unset("A")
	assert.True(t, found)
	assert.Nil(t, err)

	found, err = vars.Unset("A")
	assert.False(t, found)
	assert.Nil(t, err)

	_, ok := env["A"]
	assert.False(t, ok)
}

func TestVars_UnsetEnvironmentError(t *testing.T) {
	vars, _ := newTestVars(10)
	vars.Set("A", "1", true)
	vars.unsetenv = func(string) error {
		return errors.New("unsetenv failed")
	}

	found, err := vars.Unset("A")
	assert.True(t, found)
	assert.EqualError(t, err, "unsetenv failed")

	_, ok := vars.Lookup("A")
	assert.True(t, ok, "lookup falls back to the environment that still has A")
	assert.Equal(t, 0, vars.Len())
}

func TestVars_SetLocalAfterExport(t *testing.T) {
	vars, env := newTestVars(10)

	assert.Nil(t, vars.Set("X", "one", true))
	assert.Equal(t, "one", env["X"])

	assert.Nil(t, vars.Set("X", "two", false))
	_, ok := env["X"]
	assert.False(t, ok, "a variable made local leaves the environment")

	value, ok := vars.Lookup("X")
	assert.True(t, ok)
	assert.Equal(t, "two", value)
	assert.Equal(t, []Var{{Name: "X", Value: "two"}}, vars.List())
}

func TestVars_Expand(t *testing.T) {
	vars, _ := newTestVars(10)
	vars.Set("NAME", "world", false)

	argv := []string{"echo", "$NAME", "x$NAME", "$", "$UNKNOWN", "$HOME"}
	assert.Equal(t,
		[]string{"echo", "world", "x$NAME", "$", "$UNKNOWN", "/home/user"},
		vars.Expand(argv))

	assert.Equal(t, "$NAME", argv[1], "input is not modified")
}

func TestVar_String(t *testing.T) {
	assert.Equal(t, "A=1 (local)", Var{Name: "A", Value: "1"}.String())
	assert.Equal(t, "A=1 (global)", Var{Name: "A", Value: "1", Exported: true}.String())
}
