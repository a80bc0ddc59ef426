package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/GabrielCarpr/mediator/cache"
	"github.com/GabrielCarpr/mediator/gen"
	"github.com/GabrielCarpr/mediator/log"
)

const usage = `usage: mediatorgen <command> [flags]

commands:
  gen   write the binding tables of the given configs (default mediator.yml)
  init  write a starting mediator.yml
`

// Execute runs the mediatorgen command line and returns the exit code
func Execute(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "gen":
		err = generate(args[1:])
	case "init":
		err = initConfig(args[1:])
	default:
		err = fmt.Errorf("%s is not a valid command", args[0])
	}
	if err != nil {
		_ = log.Error(context.Background(), err, log.F{"command": args[0]})
		return 1
	}
	return 0
}

func generate(args []string) error {
	flags := flag.NewFlagSet("gen", flag.ContinueOnError)
	verbose := flags.Bool("v", false, "log warnings and skipped output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetDefault(log.New(os.Stderr, log.DEBUG))
	}

	memoCfg, err := cache.MemoConfigFromEnv()
	if err != nil {
		return err
	}
	memo := cache.NewMemo(memoCfg)

	paths := flags.Args()
	if len(paths) == 0 {
		paths = []string{"mediator.yml"}
	}
	failed := 0
	for _, path := range paths {
		c, err := gen.LoadConfig(path)
		if err != nil {
			return err
		}
		run, err := gen.Generate(c, memo)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, d := range run.Diagnostics {
			fmt.Fprintln(os.Stderr, d)
		}
		if run.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d generations dropped", failed, len(paths))
	}
	return nil
}

func initConfig(args []string) error {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	module := flags.String("module", "Module", "the type given the Bindings method, empty for a func")
	path := flags.String("config", "mediator.yml", "the config file to write")
	if err := flags.Parse(args); err != nil {
		return err
	}
	return gen.WriteConfig(*path, gen.Config{Dir: ".", Module: *module})
}
