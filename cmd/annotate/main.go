/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"annotate/internal/config"
	"annotate/internal/crash"
	applog "annotate/internal/log"
	"annotate/internal/version"

	"github.com/alecthomas/kong"
)

type cli struct {
	LogLevel string `help:"Override the configured log level (debug, info, warn, error)." name:"log-level"`

	Extract   extractCmd   `cmd:"" help:"Project point markers onto lines named \"NAME: A B [L]\"."`
	Measure   measureCmd   `cmd:"" help:"Measure line markers against lines named \"NAME: LEN\"."`
	Profile   profileCmd   `cmd:"" help:"Sample pixel colours along line markers."`
	Angle     angleCmd     `cmd:"" help:"Report the orientation of line markers."`
	Distances distancesCmd `cmd:"" help:"Pairwise distances between point markers."`
	Area      areaCmd      `cmd:"" help:"Width, height and area of rectangle markers."`

	All    allCmd    `cmd:"" help:"Run every tool and write one file per tool."`
	Report reportCmd `cmd:"" help:"Run every tool and write a PDF report."`
	Render renderCmd `cmd:"" help:"Draw the annotations over the image as PNG or SVG."`

	Validate validateCmd `cmd:"" help:"Check an annotation document against the schema."`
	Replay   replayCmd   `cmd:"" help:"Feed recorded input events into a headless session."`
	Journal  struct {
		List    journalListCmd    `cmd:"" help:"List autosaved revisions for an image."`
		Restore journalRestoreCmd `cmd:"" help:"Write an autosaved revision to a file."`
	} `cmd:"" help:"Inspect the autosave journal."`
	Version versionCmd `cmd:"" help:"Show version."`
}

// runEnv is bound into every command's Run method.
type runEnv struct {
	ctx    context.Context
	cfg    config.AppConfig
	out    io.Writer
	target *crash.Target
}

func (e *runEnv) log(cmd string) *slog.Logger {
	return applog.WithOperation(applog.WithComponent("cli"), cmd)
}

func newParser(c *cli, stdout, stderr io.Writer) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("annotate"),
		kong.Description("Image annotation geometry and analysis tools."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	)
}

// run parses args and executes the selected command.
func run(args []string, env *runEnv) error {
	var c cli
	parser, err := newParser(&c, env.out, os.Stderr)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		applog.SetLevel(c.LogLevel)
	}
	env.log("dispatch").Debug("command", slog.String("cmd", kctx.Command()))
	return kctx.Run(env)
}

func logOptions(cfg config.AppConfig) applog.Options {
	return applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		cfg = config.Defaults()
	}
	applog.Init(logOptions(cfg))
	l := applog.WithComponent("cli")

	env := &runEnv{ctx: context.Background(), cfg: cfg, out: os.Stdout, target: &crash.Target{}}
	defer crash.Recover(env.target)

	l.Debug("start", slog.String("version", version.String()), slog.Int("args", len(os.Args)))
	if err := run(os.Args[1:], env); err != nil {
		l.Error("command failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type versionCmd struct{}

func (versionCmd) Run(env *runEnv) error {
	_, err := fmt.Fprintln(env.out, "annotate", version.String())
	return err
}
