package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/wudi/hey/verifier"
)

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "verify a method's bytecode against JVMS 4.10 dataflow rules",
	ArgsUsage: "<fixture.json>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 1 {
			return fmt.Errorf("usage: jverify verify <fixture.json>")
		}
		fx, err := loadFixture(cmd.Args().Get(0))
		if err != nil {
			return err
		}
		m, err := fx.method()
		if err != nil {
			return err
		}
		lc := fx.classloaderContext()
		if err := verifier.Verify(m, lc); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Printf("%s.%s%s: OK\n", m.ClassName, m.Name, m.Descriptor)
		return nil
	},
}
