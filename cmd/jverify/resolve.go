package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/wudi/hey/memberresolver"
)

// fixtureClassModel adapts a fixture's class map to memberresolver.ClassModel
// by reading the method/field catalog from the fixture's top-level
// "members" object, keyed by class name with "methods"/"fields" lists per
// class (see fixture.go's memberEntry; the hierarchy-only facts live
// separately in classEntry under "classes"). Read ad hoc here since
// command-line resolution is a thin demonstration harness, not a
// persistent registry.
type fixtureClassModel struct {
	fx *fixture
}

func (m *fixtureClassModel) Methods(className string) ([]memberresolver.ResolvedMethod, error) {
	entry, ok := m.fx.Members[className]
	if !ok {
		return nil, nil
	}
	return entry.Methods, nil
}

func (m *fixtureClassModel) Fields(className string) ([]memberresolver.ResolvedField, error) {
	entry, ok := m.fx.Members[className]
	if !ok {
		return nil, nil
	}
	return entry.Fields, nil
}

func (m *fixtureClassModel) PackageOf(className string) string {
	return packageOf(className)
}

func packageOf(className string) string {
	last := -1
	for i, c := range className {
		if c == '/' {
			last = i
		}
	}
	if last < 0 {
		return ""
	}
	return className[:last]
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "resolve a MemberName (class/name/descriptor/reference-kind) with access checks",
	ArgsUsage: "<fixture.json> <reference-kind> <class> <name> <descriptor>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 5 {
			return fmt.Errorf("usage: jverify resolve <fixture.json> <reference-kind> <class> <name> <descriptor>")
		}
		fx, err := loadFixture(cmd.Args().Get(0))
		if err != nil {
			return err
		}
		rk, ok := referenceKindsByName[cmd.Args().Get(1)]
		if !ok {
			return fmt.Errorf("unknown reference kind %q", cmd.Args().Get(1))
		}
		member := memberresolver.MemberName{
			ClassName:  cmd.Args().Get(2),
			Name:       cmd.Args().Get(3),
			Descriptor: cmd.Args().Get(4),
			Flags:      memberresolver.MemberNameFlags(0).WithReferenceKind(rk),
		}
		resolver := &memberresolver.Resolver{
			Classes: fx.classloaderContext(),
			Model:   &fixtureClassModel{fx: fx},
		}
		lookup := memberresolver.Lookup{
			CallerClass: fx.Caller,
			Modes: memberresolver.LookupPublic | memberresolver.LookupPrivate |
				memberresolver.LookupProtected | memberresolver.LookupPackage,
		}
		resolved, err := resolver.Resolve(member, lookup)
		if err != nil {
			return fmt.Errorf("resolution failed: %w", err)
		}
		fmt.Printf("resolved %s.%s%s (vmindex=%d)\n", resolved.ClassName, resolved.Name, resolved.Descriptor, resolved.VMIndex)
		return nil
	},
}

var referenceKindsByName = map[string]memberresolver.ReferenceKind{
	"getField":         memberresolver.RefGetField,
	"getStatic":        memberresolver.RefGetStatic,
	"putField":         memberresolver.RefPutField,
	"putStatic":        memberresolver.RefPutStatic,
	"invokeVirtual":    memberresolver.RefInvokeVirtual,
	"invokeStatic":     memberresolver.RefInvokeStatic,
	"invokeSpecial":    memberresolver.RefInvokeSpecial,
	"newInvokeSpecial": memberresolver.RefNewInvokeSpecial,
	"invokeInterface":  memberresolver.RefInvokeInterface,
}
