package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func GetConfigCmdOpts() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or write the engine configuration",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration (defaults, file and environment overrides applied)",
				Action: ConfigShow,
			},
			{
				Name:   "init",
				Usage:  "Write the effective configuration to the --config path, or the per-user default",
				Action: ConfigInit,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file without asking"},
				},
			},
		},
	}
}

func ConfigShow(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(App.cfgPath); err == nil {
		fmt.Printf("# loaded from %s\n", App.cfgPath)
	}
	out, err := yaml.Marshal(App.cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := App.cfgPath
	if path == "" {
		return cli.Exit("no configuration path, use --config", 1)
	}
	if _, err := os.Stat(path); err == nil {
		if !cmd.Bool("force") {
			if _, err := yesNo(fmt.Sprintf("%s exists.  Overwrite", path)); err != nil {
				return cli.Exit("not overwritten", 1)
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := App.cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("configuration written to %s\n", path)
	return nil
}
