package grpcserver

import (
	"fmt"
	"strings"
)

// ServiceName is a validated, protobuf-style dotted service identifier,
// such as "acme.foo.v1.Foo". It's an immutable value: once parsed, a
// ServiceName can't be mutated.
type ServiceName struct {
	pkg     string // may be empty
	service string
}

// ParseServiceName splits a fully-qualified protobuf service identifier
// into package and service, validating every character along the way. The
// last "." in fullyQualified splits package from service; everything
// before it is the package (which may itself contain dots), everything
// after is the service name.
func ParseServiceName(fullyQualified string) (ServiceName, error) {
	if fullyQualified == "" {
		return ServiceName{}, fmt.Errorf("grpcserver: empty service name")
	}
	if !isValidIdentifierChars(fullyQualified) {
		return ServiceName{}, fmt.Errorf("grpcserver: invalid service name %q: must match [A-Za-z0-9_.]+", fullyQualified)
	}
	idx := strings.LastIndexByte(fullyQualified, '.')
	if idx < 0 {
		return NewServiceName("", fullyQualified)
	}
	pkg, service := fullyQualified[:idx], fullyQualified[idx+1:]
	if pkg == "" {
		return ServiceName{}, fmt.Errorf("grpcserver: invalid service name %q: package before the last \".\" must not be empty", fullyQualified)
	}
	return NewServiceName(pkg, service)
}

// NewServiceName validates and constructs a ServiceName from its
// constituent package and service parts. pkg may be empty; service must
// not be.
func NewServiceName(pkg, service string) (ServiceName, error) {
	if service == "" {
		return ServiceName{}, fmt.Errorf("grpcserver: service name must not be empty (package %q)", pkg)
	}
	if pkg != "" && !isValidIdentifierChars(pkg) {
		return ServiceName{}, fmt.Errorf("grpcserver: invalid package %q: must match [A-Za-z0-9_.]+", pkg)
	}
	if !isValidServiceChars(service) {
		return ServiceName{}, fmt.Errorf("grpcserver: invalid service %q: must match [A-Za-z0-9_]+", service)
	}
	return ServiceName{pkg: pkg, service: service}, nil
}

// Package returns the dotted package portion of the name, or "" if the
// name has no package.
func (n ServiceName) Package() string { return n.pkg }

// Service returns the unqualified service portion of the name.
func (n ServiceName) Service() string { return n.service }

// FullyQualified returns "package.service", or just "service" when there's
// no package.
func (n ServiceName) FullyQualified() string {
	if n.pkg == "" {
		return n.service
	}
	return n.pkg + "." + n.service
}

// MethodPath returns the HTTP path gRPC uses to dispatch to method:
// "/package.Service/Method". The method name itself is not validated here
// — ParseMethodPath is responsible for splitting and validating an
// incoming ":path" header.
func (n ServiceName) MethodPath(method string) string {
	return "/" + n.FullyQualified() + "/" + method
}

func (n ServiceName) String() string { return n.FullyQualified() }

// Equal reports whether two ServiceNames name the same (package, service)
// pair. ServiceName is comparable with == directly, but Equal documents the
// intent at call sites.
func (n ServiceName) Equal(other ServiceName) bool {
	return n.pkg == other.pkg && n.service == other.service
}

// ParseMethodPath splits an incoming HTTP ":path" of the form
// "/package.Service/Method" into its ServiceName and bare method name. The
// final "/" in the path is the split point; everything before it must be a
// valid ServiceName and everything after it is returned verbatim as the
// method name (methods aren't subject to the [A-Za-z0-9_.] restriction
// here, matching spec: "the method component is not validated").
func ParseMethodPath(path string) (ServiceName, string, error) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ServiceName{}, "", fmt.Errorf("grpcserver: malformed method path %q: expected /package.Service/Method", path)
	}
	svc, err := ParseServiceName(trimmed[:idx])
	if err != nil {
		return ServiceName{}, "", fmt.Errorf("grpcserver: malformed method path %q: %w", path, err)
	}
	return svc, trimmed[idx+1:], nil
}

func isValidIdentifierChars(s string) bool {
	for _, r := range s {
		if !isIdentifierRune(r) && r != '.' {
			return false
		}
	}
	return true
}

func isValidServiceChars(s string) bool {
	for _, r := range s {
		if !isIdentifierRune(r) {
			return false
		}
	}
	return true
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}
