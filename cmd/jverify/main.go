// Command jverify is the CLI surface over this module's verifier, member
// resolver, and disassembler, grounded on cmd/hey/main.go's urfave/cli/v3
// Command/subcommand layout (init/require/install/update/validate/fpm
// there become verify/resolve/disasm/shell here).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wudi/hey/version"
)

func main() {
	app := &cli.Command{
		Name:  "jverify",
		Usage: "JVM bytecode verifier and member resolver",
		Commands: []*cli.Command{
			verifyCommand,
			resolveCommand,
			disasmCommand,
			shellCommand,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "accepted but read by no subcommand; output is unchanged",
			},
			&cli.StringFlag{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "Show version",
				Action: func(ctx context.Context, cmd *cli.Command, s string) error {
					fmt.Println(version.Version())
					return nil
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jverify:", err)
		os.Exit(1)
	}
}
