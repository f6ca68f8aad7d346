package process

import (
	"fmt"
	"strings"
	"syscall"
)

var signalNames = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"INT":  syscall.SIGINT,
	"HUP":  syscall.SIGHUP,
	"QUIT": syscall.SIGQUIT,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

// ParseSignal maps a stop signal name such as "TERM" or "SIGINT" to its value.
func ParseSignal(name string) (syscall.Signal, error) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	sig, ok := signalNames[key]
	if !ok {
		return 0, fmt.Errorf("unsupported stop signal %q", name)
	}
	return sig, nil
}
