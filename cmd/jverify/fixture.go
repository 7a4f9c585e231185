package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/wudi/hey/classfile"
	"github.com/wudi/hey/classloader"
	"github.com/wudi/hey/memberresolver"
	"github.com/wudi/hey/opcodes"
	"github.com/wudi/hey/verifier"
)

// fixture is the on-disk JSON shape jverify reads instead of a real .class
// file: a class-file binary reader is out of scope for this module (see
// classfile's package doc), so the CLI operates on an already-decoded
// method description, the same shape test fixtures across this tree build
// in memory directly.
type fixture struct {
	Classes   map[string]classEntry `json:"classes"`
	Constants []constantEntry       `json:"constants"` // index i holds constant-pool entry i+1
	Method    methodEntry           `json:"method"`

	// Members and Caller are consulted only by the resolve subcommand.
	Members map[string]memberEntry `json:"members"`
	Caller  string                 `json:"caller"`
}

type memberEntry struct {
	Methods []memberresolver.ResolvedMethod `json:"methods"`
	Fields  []memberresolver.ResolvedField  `json:"fields"`
}

type classEntry struct {
	Super       string   `json:"super"`
	Interfaces  []string `json:"interfaces"`
	NestHost    string   `json:"nest_host"`
	NestMembers []string `json:"nest_members"`
	IsInterface bool     `json:"is_interface"`
}

type constantEntry struct {
	Tag              string `json:"tag"`
	Utf8             string `json:"utf8"`
	Int32            int32  `json:"int32"`
	Float32          float32 `json:"float32"`
	Int64            int64  `json:"int64"`
	Float64          float64 `json:"float64"`
	NameIndex        int    `json:"name_index"`
	ClassIndex       int    `json:"class_index"`
	NameAndTypeIndex int    `json:"name_and_type_index"`
	DescriptorIndex  int    `json:"descriptor_index"`
}

type methodEntry struct {
	Class      string      `json:"class"`
	Name       string      `json:"name"`
	Descriptor string      `json:"descriptor"`
	Access     []string    `json:"access"`
	Code       *codeEntry  `json:"code"`
}

type codeEntry struct {
	MaxStack       int                 `json:"max_stack"`
	MaxLocals      int                 `json:"max_locals"`
	Instructions   []instructionEntry  `json:"instructions"`
	ExceptionTable []exceptionEntry    `json:"exception_table"`
}

type instructionEntry struct {
	Opcode      string  `json:"opcode"`
	Offset      int     `json:"offset"`
	Length      int     `json:"length"`
	IntOperand  int     `json:"int_operand"`
	IntOperand2 int     `json:"int_operand2"`
	Targets     []int   `json:"targets"`
	SwitchKeys  []int32 `json:"switch_keys"`
	SwitchLow   int32   `json:"switch_low"`
	SwitchHigh  int32   `json:"switch_high"`
}

type exceptionEntry struct {
	StartPC   int `json:"start_pc"`
	EndPC     int `json:"end_pc"`
	HandlerPC int `json:"handler_pc"`
	CatchType int `json:"catch_type"`
}

var accessBits = map[string]classfile.MethodAccessFlags{
	"public":       classfile.AccPublic,
	"private":      classfile.AccPrivate,
	"protected":    classfile.AccProtected,
	"static":       classfile.AccStatic,
	"final":        classfile.AccFinal,
	"synchronized": classfile.AccSynchronized,
	"bridge":       classfile.AccBridge,
	"varargs":      classfile.AccVarargs,
	"native":       classfile.AccNative,
	"abstract":     classfile.AccAbstract,
	"strict":       classfile.AccStrict,
	"synthetic":    classfile.AccSynthetic,
}

var constantTags = map[string]classfile.ConstantTag{
	"Utf8":               classfile.TagUtf8,
	"Integer":            classfile.TagInteger,
	"Float":              classfile.TagFloat,
	"Long":               classfile.TagLong,
	"Double":             classfile.TagDouble,
	"Class":              classfile.TagClass,
	"String":             classfile.TagString,
	"Fieldref":           classfile.TagFieldref,
	"Methodref":          classfile.TagMethodref,
	"InterfaceMethodref": classfile.TagInterfaceMethodref,
	"NameAndType":        classfile.TagNameAndType,
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &fx, nil
}

func (fx *fixture) constantPool() (*classfile.ConstantPool, error) {
	entries := make([]classfile.Constant, len(fx.Constants)+1)
	for i, ce := range fx.Constants {
		tag, ok := constantTags[ce.Tag]
		if !ok {
			return nil, fmt.Errorf("constant %d: unknown tag %q", i+1, ce.Tag)
		}
		entries[i+1] = classfile.Constant{
			Tag: tag, Utf8: ce.Utf8, Int32: ce.Int32, Float32: ce.Float32,
			Int64: ce.Int64, Float64: ce.Float64, NameIndex: ce.NameIndex,
			ClassIndex: ce.ClassIndex, NameAndTypeIndex: ce.NameAndTypeIndex,
			DescriptorIndex: ce.DescriptorIndex,
		}
	}
	return classfile.NewConstantPool(entries), nil
}

func (fx *fixture) method() (*verifier.Method, error) {
	cp, err := fx.constantPool()
	if err != nil {
		return nil, err
	}
	var access classfile.MethodAccessFlags
	for _, name := range fx.Method.Access {
		bit, ok := accessBits[name]
		if !ok {
			return nil, fmt.Errorf("unknown access flag %q", name)
		}
		access |= bit
	}

	m := &verifier.Method{
		ClassName:  fx.Method.Class,
		Name:       fx.Method.Name,
		Descriptor: fx.Method.Descriptor,
		Access:     access,
		Constants:  cp,
	}
	if fx.Method.Code == nil {
		return m, nil
	}

	var instructions []*opcodes.Instruction
	for _, ie := range fx.Method.Code.Instructions {
		op, ok := opcodes.ByName(ie.Opcode)
		if !ok {
			return nil, fmt.Errorf("unknown opcode %q at offset %d", ie.Opcode, ie.Offset)
		}
		instructions = append(instructions, &opcodes.Instruction{
			Opcode: op, Offset: ie.Offset, Length: ie.Length,
			IntOperand: ie.IntOperand, IntOperand2: ie.IntOperand2,
			Targets: ie.Targets, SwitchKeys: ie.SwitchKeys,
			SwitchLow: ie.SwitchLow, SwitchHigh: ie.SwitchHigh,
		})
	}
	var exTable []classfile.ExceptionTableEntry
	for _, ee := range fx.Method.Code.ExceptionTable {
		exTable = append(exTable, classfile.ExceptionTableEntry{
			StartPC: ee.StartPC, EndPC: ee.EndPC, HandlerPC: ee.HandlerPC, CatchType: ee.CatchType,
		})
	}
	m.Code = &classfile.Code{
		MaxStack: fx.Method.Code.MaxStack, MaxLocals: fx.Method.Code.MaxLocals,
		ExceptionTable: exTable,
	}
	m.Instructions = instructions
	return m, nil
}

// jsonLoader adapts fixture.Classes to classloader.Loader.
type jsonLoader struct{ classes map[string]classEntry }

func (l *jsonLoader) Load(name string) (classloader.ClassInfo, error) {
	ce, ok := l.classes[name]
	if !ok {
		if name == "java/lang/Object" {
			return classloader.ClassInfo{Name: name}, nil
		}
		return classloader.ClassInfo{}, classloader.ErrClassNotFound
	}
	return classloader.ClassInfo{
		Name: name, SuperName: ce.Super, Interfaces: ce.Interfaces,
		IsInterface: ce.IsInterface, NestHost: ce.NestHost, NestMembers: ce.NestMembers,
	}, nil
}

func (fx *fixture) classloaderContext() *classloader.Context {
	return classloader.New(&jsonLoader{classes: fx.Classes})
}
