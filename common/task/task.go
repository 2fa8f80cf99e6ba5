package task

import (
	"context"

	E "github.com/sagernet/sing-cio/common/exceptions"

	"golang.org/x/sync/errgroup"
)

type taskItem struct {
	Name string
	Run  func(ctx context.Context) error
}

// Group runs named tasks together. The first failure cancels the others.
type Group struct {
	tasks    []taskItem
	cleanup  func()
	fastFail bool
}

func (g *Group) Append(name string, f func(ctx context.Context) error) {
	g.tasks = append(g.tasks, taskItem{
		Name: name,
		Run:  f,
	})
}

func (g *Group) Append0(f func(ctx context.Context) error) {
	g.Append("", f)
}

// Cleanup sets a function that runs once every task has returned.
func (g *Group) Cleanup(f func()) {
	g.cleanup = f
}

// FastFail cancels the remaining tasks as soon as any task returns, even
// without an error.
func (g *Group) FastFail() {
	g.fastFail = true
}

func (g *Group) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	groupCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()
	for _, task := range g.tasks {
		task := task
		group.Go(func() error {
			err := task.Run(groupCtx)
			if g.fastFail {
				cancel()
			}
			if err != nil && task.Name != "" {
				return E.Cause(err, task.Name)
			}
			return err
		})
	}
	err := group.Wait()
	if g.cleanup != nil {
		g.cleanup()
	}
	return err
}

func Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	var group Group
	for _, task := range tasks {
		group.Append0(task)
	}
	return group.Run(ctx)
}
