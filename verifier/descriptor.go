package verifier

import (
	"strings"

	"github.com/wudi/hey/vtype"
)

// parseFieldType reads one field descriptor (JVMS 4.3.2) starting at s[0],
// returning the verification type and how many bytes it consumed.
func parseFieldType(s string) (vtype.Type, int, error) {
	if len(s) == 0 {
		return vtype.Type{}, 0, NewClassFormatError(ErrBadDescriptor, "empty field descriptor")
	}
	switch s[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return vtype.Integer, 1, nil
	case 'F':
		return vtype.Float, 1, nil
	case 'J':
		return vtype.Long, 1, nil
	case 'D':
		return vtype.Double, 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return vtype.Type{}, 0, NewClassFormatError(ErrBadDescriptor, "unterminated class descriptor %q", s)
		}
		return vtype.Object(s[1:end]), end + 1, nil
	case '[':
		_, n, err := parseFieldType(s[1:])
		if err != nil {
			return vtype.Type{}, 0, err
		}
		return vtype.Object(s[:n+1]), n + 1, nil
	default:
		return vtype.Type{}, 0, NewClassFormatError(ErrBadDescriptor, "unrecognized field descriptor %q", s)
	}
}

// ParseFieldDescriptor parses a complete field descriptor string.
func ParseFieldDescriptor(s string) (vtype.Type, error) {
	t, n, err := parseFieldType(s)
	if err != nil {
		return vtype.Type{}, err
	}
	if n != len(s) {
		return vtype.Type{}, NewClassFormatError(ErrBadDescriptor, "trailing data in field descriptor %q", s)
	}
	return t, nil
}

// MethodDescriptor is a parsed (param types, return type) pair (JVMS 4.3.3).
type MethodDescriptor struct {
	Params  []vtype.Type
	Return  vtype.Type // zero-value Type{} (Kind == KindTop with no meaning) when void
	IsVoid  bool
}

// ParseMethodDescriptor parses a complete method descriptor string such as
// "(ILjava/lang/String;)V".
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	if len(s) == 0 || s[0] != '(' {
		return MethodDescriptor{}, NewClassFormatError(ErrBadDescriptor, "method descriptor %q missing '('", s)
	}
	i := 1
	var params []vtype.Type
	for i < len(s) && s[i] != ')' {
		t, n, err := parseFieldType(s[i:])
		if err != nil {
			return MethodDescriptor{}, err
		}
		params = append(params, t)
		i += n
	}
	if i >= len(s) {
		return MethodDescriptor{}, NewClassFormatError(ErrBadDescriptor, "method descriptor %q missing ')'", s)
	}
	i++ // skip ')'
	rest := s[i:]
	if rest == "V" {
		return MethodDescriptor{Params: params, IsVoid: true}, nil
	}
	ret, err := ParseFieldDescriptor(rest)
	if err != nil {
		return MethodDescriptor{}, err
	}
	return MethodDescriptor{Params: params, Return: ret}, nil
}
