//go:build !windows

package proc

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "FORKDEMO"

// EnvRole is the environment variable that marks a process as a child.
const EnvRole = envPrefix + "_ROLE"

// Task tells a child process what to do after it has been created.
type Task struct {
	// Role selects the routine registered with Register.
	Role string `envconfig:"ROLE"`
	// Index is the ordinal assigned by the spawning loop.
	Index int `envconfig:"INDEX"`
	// Round is the proliferation round the child was created in.
	Round int `envconfig:"ROUND"`
	// Ack is set when the child was handed an acknowledgement channel on AckFD.
	Ack bool `envconfig:"ACK"`
}

func (t Task) environ() []string {
	return []string{
		EnvRole + "=" + t.Role,
		envPrefix + "_INDEX=" + strconv.Itoa(t.Index),
		envPrefix + "_ROUND=" + strconv.Itoa(t.Round),
		envPrefix + "_ACK=" + strconv.FormatBool(t.Ack),
	}
}

// ChildFunc runs inside a child process and returns its exit status.
type ChildFunc func(Task) int

var handlers = map[string]ChildFunc{}

// Register binds a role name to the routine a child with that role runs.
// Register is meant to be called from init functions.
func Register(role string, fn ChildFunc) {
	if role == "" {
		panic("proc: empty role")
	}
	if _, exists := handlers[role]; exists {
		panic(fmt.Sprintf("proc: role %q registered twice", role))
	}
	handlers[role] = fn
}

// CurrentTask decodes the task of the running process. ok is false when the
// process is not a child created by Fork.
func CurrentTask() (task Task, ok bool, err error) {
	if os.Getenv(EnvRole) == "" {
		return Task{}, false, nil
	}
	if err := envconfig.Process(envPrefix, &task); err != nil {
		return Task{}, true, fmt.Errorf("decode child task: %w", err)
	}
	return task, true, nil
}

// Init runs the registered routine when the current process is a child and
// exits with the routine's status. It returns false in the original process.
func Init() bool {
	task, ok, err := CurrentTask()
	if !ok {
		return false
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "forkdemo child %d: %v\n", os.Getpid(), err)
		os.Exit(1)
	}
	fn, found := handlers[task.Role]
	if !found {
		fmt.Fprintf(os.Stderr, "forkdemo child %d: unknown role %q\n", os.Getpid(), task.Role)
		os.Exit(1)
	}
	os.Exit(fn(task))
	return true
}
