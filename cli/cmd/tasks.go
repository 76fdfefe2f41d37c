package cmd

import (
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/plug/build"
	"github.com/justapithecus/plug/cli/render"
	"github.com/justapithecus/plug/fork"
	"github.com/justapithecus/plug/pipe"
)

// TaskInfo is one row of the tasks command.
type TaskInfo struct {
	Name      string `json:"name"`
	BuildFile string `json:"build_file" yaml:"build_file"`
}

// TasksCommand returns the tasks command, which lists the defined tasks.
func TasksCommand(b *build.Build) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List the tasks this program defines",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			return r.Render(listTasks(b))
		},
	}
}

func listTasks(b *build.Build) []TaskInfo {
	names := b.Names()
	out := make([]TaskInfo, len(names))
	for i, name := range names {
		out[i] = TaskInfo{Name: name, BuildFile: b.File().String()}
	}
	return out
}

// StageInfo is one row of the stages command.
type StageInfo struct {
	Name string `json:"name"`
	// Stage is true when the name can be used with Pipe.Call.
	Stage bool `json:"stage"`
	// Forkable is true when the name can be run through the fork stage.
	Forkable bool `json:"forkable"`
}

// StagesCommand returns the stages command, which lists the installed
// pipe stages and the plugs that can run in a worker.
func StagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "stages",
		Usage: "List installed pipe stages and forkable plugs",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			return r.Render(listStages())
		},
	}
}

func listStages() []StageInfo {
	byName := make(map[string]*StageInfo)
	entry := func(name string) *StageInfo {
		if info, ok := byName[name]; ok {
			return info
		}
		info := &StageInfo{Name: name}
		byName[name] = info
		return info
	}
	for _, name := range pipe.Installed() {
		entry(name).Stage = true
	}
	for _, name := range fork.Registered() {
		entry(name).Forkable = true
	}

	out := make([]StageInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	slices.SortFunc(out, func(a, b StageInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
