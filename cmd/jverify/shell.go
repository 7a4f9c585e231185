package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/wudi/hey/verifier"
)

// shellCommand is an interactive REPL over the verify/disasm operations:
// "load <fixture.json>" loads a method, "verify" runs it, "disasm" prints
// its instructions, "help" lists the commands and "exit"/"quit" leaves.
// There is no command for inspecting per-offset frame state. Uses
// chzyer/readline for history and line editing rather than a bare
// bufio.Scanner loop.
var shellCommand = &cli.Command{
	Name:  "shell",
	Usage: "interactive REPL: load a fixture, verify it, disassemble it",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "jverify> ",
			HistoryFile:     "/tmp/.jverify_history",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("shell: %w", err)
		}
		defer rl.Close()

		var current *verifier.Method
		var currentFx *fixture

		fmt.Println("jverify interactive shell. Commands: load <file>, verify, disasm, help, exit")
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}

			fields := strings.Fields(strings.TrimSpace(line))
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "exit", "quit":
				return nil
			case "help":
				fmt.Println("load <fixture.json> | verify | disasm | exit")
			case "load":
				if len(fields) < 2 {
					fmt.Println("usage: load <fixture.json>")
					continue
				}
				fx, err := loadFixture(fields[1])
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				m, err := fx.method()
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				current, currentFx = m, fx
				fmt.Printf("loaded %s.%s%s\n", m.ClassName, m.Name, m.Descriptor)
			case "verify":
				if current == nil {
					fmt.Println("no method loaded; use 'load <fixture.json>' first")
					continue
				}
				if err := verifier.Verify(current, currentFx.classloaderContext()); err != nil {
					fmt.Println("verification failed:", err)
					continue
				}
				fmt.Println("OK")
			case "disasm":
				if current == nil {
					fmt.Println("no method loaded; use 'load <fixture.json>' first")
					continue
				}
				for _, in := range current.Instructions {
					fmt.Printf("  %4d: %-16s operand=%d\n", in.Offset, in.Opcode, in.IntOperand)
				}
			default:
				fmt.Printf("unknown command %q; type help\n", fields[0])
			}
		}
	},
}
