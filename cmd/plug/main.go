// Command plug is an example build program. Its tasks live next to this
// file, so "@" paths resolve to cmd/plug.
//
// Usage:
//
//	go run ./cmd/plug run site
//	go run ./cmd/plug tasks
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/justapithecus/plug/build"
	"github.com/justapithecus/plug/cli/cmd"
	"github.com/justapithecus/plug/files"
	"github.com/justapithecus/plug/pipe"
	"github.com/justapithecus/plug/run"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

var tasks = build.New(build.Here(), nil)

func init() {
	tasks.MustDefine("pages", pages)
	tasks.MustDefine("notes", notes)
	tasks.MustDefine("site", site)
	tasks.MustDefine("check", check)
}

// pages generates the page sources and copies them into dist in a worker.
func pages(ctx context.Context) error {
	r, err := run.Require(ctx)
	if err != nil {
		return err
	}
	src, err := r.Resolve("@build", "pages")
	if err != nil {
		return err
	}

	b := files.NewBuilder(src)
	for _, name := range []string{"index.html", "about.html"} {
		body := fmt.Sprintf("<h1>%s</h1>\n", name)
		if err := b.Write(name, []byte(body)); err != nil {
			return err
		}
	}
	in, err := b.Build()
	if err != nil {
		return err
	}

	_, err = pipe.From(ctx, in).
		Call("debug", "pages").
		Call("fork", "copy", "@dist").
		Wait()
	return err
}

// notes writes a build stamp into dist.
func notes(ctx context.Context) error {
	r, err := run.Require(ctx)
	if err != nil {
		return err
	}
	dist, err := r.Resolve("@dist")
	if err != nil {
		return err
	}
	empty, err := files.From(dist)
	if err != nil {
		return err
	}
	stamp := fmt.Sprintf("built %s by run %s\n", time.Now().UTC().Format(time.RFC3339), r.ID)
	_, err = pipe.From(ctx, empty).Call("write", "BUILD", stamp).Wait()
	return err
}

// site builds pages and notes concurrently.
func site(ctx context.Context) error {
	return tasks.Parallel(ctx, "pages", "notes")
}

// check fails when dist is missing any expected output.
func check(ctx context.Context) error {
	r, err := run.Require(ctx)
	if err != nil {
		return err
	}
	dist, err := r.Resolve("@dist")
	if err != nil {
		return err
	}
	expected, err := files.From(dist, "index.html", "about.html", "BUILD")
	if err != nil {
		return err
	}
	_, err = pipe.From(ctx, expected).Call("fork", "exists").Wait()
	return err
}

func main() {
	cmd.Main(tasks, commit)
}
