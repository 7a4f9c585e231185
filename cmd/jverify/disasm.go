package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

var disasmCommand = &cli.Command{
	Name:      "disasm",
	Usage:     "print a method's decoded instruction stream",
	ArgsUsage: "<fixture.json>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 1 {
			return fmt.Errorf("usage: jverify disasm <fixture.json>")
		}
		fx, err := loadFixture(cmd.Args().Get(0))
		if err != nil {
			return err
		}
		m, err := fx.method()
		if err != nil {
			return err
		}
		fmt.Printf("%s.%s%s:\n", m.ClassName, m.Name, m.Descriptor)
		if m.Code == nil {
			fmt.Println("  (no Code attribute)")
			return nil
		}
		for _, in := range m.Instructions {
			fmt.Printf("  %4d: %-16s operand=%d operand2=%d targets=%v\n",
				in.Offset, in.Opcode, in.IntOperand, in.IntOperand2, in.Targets)
		}
		return nil
	},
}
