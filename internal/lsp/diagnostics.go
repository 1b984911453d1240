package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
	kerrors "kanso/internal/errors"
)

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}

// ConvertVerifyDiagnostics transforms verify.Verifier's CompilerErrors
// (unverified assertions, resolution failures, internal failures,
// indeterminate results) into LSP diagnostics for IDE display.
func ConvertVerifyDiagnostics(diags []kerrors.CompilerError) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, d := range diags {
		length := d.Length
		if length <= 0 {
			length = 1
		}
		diagnostic := protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{
					Line:      uint32(d.Position.Line - 1),
					Character: uint32(d.Position.Column - 1),
				},
				End: protocol.Position{
					Line:      uint32(d.Position.Line - 1),
					Character: uint32(d.Position.Column - 1 + length),
				},
			},
			Severity: ptrSeverity(severityFor(d.Level)),
			Source:   ptrString("kanso-verify"),
			Message:  formatVerifyMessage(d.Code, d.Message),
		}
		diagnostics = append(diagnostics, diagnostic)
	}

	return diagnostics
}

func formatVerifyMessage(code, message string) string {
	if code == "" {
		return message
	}
	return "[" + code + "] " + message
}

func severityFor(level kerrors.ErrorLevel) protocol.DiagnosticSeverity {
	switch level {
	case kerrors.Warning:
		return protocol.DiagnosticSeverityWarning
	case kerrors.Note, kerrors.Help:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}
