package shell

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseSignal accepts a signal number ("9"), a name ("KILL") or a prefixed
// name ("SIGKILL").
func ParseSignal(spec string) (unix.Signal, error) {
	if n, err := strconv.Atoi(spec); err == nil {
		sig := unix.Signal(n)
		if n <= 0 || unix.SignalName(sig) == "" {
			return 0, fmt.Errorf("%s: invalid signal specification", spec)
		}
		return sig, nil
	}

	name := strings.ToUpper(spec)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}

	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("%s: invalid signal specification", spec)
	}
	return sig, nil
}

// SignalName returns the short name of a signal e.g. "KILL".
func SignalName(sig unix.Signal) string {
	name := unix.SignalName(sig)
	if name == "" {
		return strconv.Itoa(int(sig))
	}
	return strings.TrimPrefix(name, "SIG")
}
