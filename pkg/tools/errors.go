package tools

import "fmt"

// RegistrationError reports a rejected Register call: a name conflict with a
// different tool instance, or a tool that cannot be executed.
type RegistrationError struct {
	Tool    string
	Message string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("tool registration %q: %s", e.Tool, e.Message)
}

// UnknownToolError reports an Invoke against an unregistered name. The
// orchestrator treats it like any other tool failure.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Tool)
}
