package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	ps "github.com/shirou/gopsutil/v4/process"
)

// commLimit is the length Linux truncates process names to.
const commLimit = 15

const listTimeout = 5 * time.Second

type instance struct {
	name string
	// args is nil when the command line could not be read.
	args []string
}

// InstanceCounter counts running processes that share the current executable's
// name. With a mode set, only processes started with that argument count, so
// short lived client invocations of the same binary are ignored.
type InstanceCounter struct {
	name string
	mode string
	list func(ctx context.Context) ([]instance, error)
}

func NewInstanceCounter(mode string) (*InstanceCounter, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error resolving executable %w", err)
	}

	return &InstanceCounter{
		name: filepath.Base(exe),
		mode: mode,
		list: listProcesses,
	}, nil
}

func (c *InstanceCounter) CountRunningInstances() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	procs, err := c.list(ctx)
	if err != nil {
		err = fmt.Errorf("error listing processes %w", err)
		log.Error().Err(err).Send()
		return 0, err
	}

	count := 0
	for _, p := range procs {
		if matches(c.name, p.name) && c.inMode(p.args) {
			count++
		}
	}

	log.Debug().Str("name", c.name).Str("mode", c.mode).Int("count", count).Msg("counted running instances")

	return count, nil
}

// inMode reports whether args belong to a process running in c.mode. An
// unreadable command line counts as a match.
func (c *InstanceCounter) inMode(args []string) bool {
	if c.mode == "" || args == nil {
		return true
	}

	return len(args) > 1 && slices.Contains(args[1:], c.mode)
}

func listProcesses(ctx context.Context) ([]instance, error) {
	procs, err := ps.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	instances := make([]instance, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited while listing, or not ours to inspect
			continue
		}

		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			args = nil
		}
		instances = append(instances, instance{name: name, args: args})
	}

	return instances, nil
}

func matches(executable, name string) bool {
	if name == executable {
		return true
	}

	return len(executable) > commLimit && name == executable[:commLimit]
}
