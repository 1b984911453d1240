package lsp

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"kanso/internal/bytecode"
	kerrors "kanso/internal/errors"
	"kanso/internal/namespace"
	"kanso/internal/subtype"
	"kanso/internal/termgraph"
	"kanso/internal/verify"
)

// KansoHandler implements the LSP server handlers for the verification
// core: an open or changed bytecode document is decoded and run through
// the branching verifier, with the resulting diagnostics published back
// to the editor.
type KansoHandler struct {
	ns       *namespace.Resolver
	env      subtype.Env
	maxSteps int
	workers  int
}

// NewKansoHandler creates and returns a new KansoHandler instance. Every
// document verified by this handler shares one namespace.Resolver, the one
// resource verification tasks are meant to share across a run.
func NewKansoHandler() *KansoHandler {
	return &KansoHandler{
		ns:       namespace.New(),
		env:      subtype.Env{RecursionBudget: 64, RewriteBudget: 10000},
		maxSteps: 10000,
		workers:  4,
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *KansoHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true), // notify on open/close events
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is called after the client receives the server's capabilities and completes initialization
func (h *KansoHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("Kanso LSP Initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *KansoHandler) Shutdown(ctx *glsp.Context) error {
	log.Println("Kanso LSP Shutdown")
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor
func (h *KansoHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("Opened file: %s\n", params.TextDocument.URI)
	return h.verifyAndPublish(ctx, params.TextDocument.URI)
}

// TextDocumentDidClose handles file close notifications from the editor
func (h *KansoHandler) TextDocumentDidClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Printf("Closed file: %s\n", params.TextDocument.URI)
	return nil
}

// TextDocumentDidChange handles file change notifications from the editor
func (h *KansoHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Printf("Changed file: %s\n", params.TextDocument.URI)
	return h.verifyAndPublish(ctx, params.TextDocument.URI)
}

// verifyAndPublish decodes the bytecode document at uri, verifies every
// procedure it names concurrently, and publishes the combined diagnostics.
// A decode failure is reported as a single diagnostic at the start of the
// file rather than dropped silently.
func (h *KansoHandler) verifyAndPublish(ctx *glsp.Context, rawURI protocol.DocumentUri) error {
	path, err := uriToPath(rawURI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", rawURI, err)
	}

	reader, err := bytecode.NewJSONReader(path)
	if err != nil {
		sendDiagnosticNotification(ctx, rawURI, []protocol.Diagnostic{{
			Range:    protocol.Range{Start: protocol.Position{}, End: protocol.Position{Character: 1}},
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("kanso-verify"),
			Message:  err.Error(),
		}})
		return nil
	}

	var tasks []*verify.Task
	for _, name := range reader.Names() {
		proc, err := reader.ReadProcedure(name)
		if err != nil {
			continue
		}
		tasks = append(tasks, &verify.Task{
			Graph: termgraph.New(),
			Proc:  proc,
			Env:   h.env,
		})
	}

	var diags []kerrors.CompilerError
	pool := verify.NewPool(h.ns, h.maxSteps, h.workers)
	for _, r := range pool.Run(tasks) {
		diags = append(diags, r.Diags...)
	}

	sendDiagnosticNotification(ctx, rawURI, ConvertVerifyDiagnostics(diags))
	return nil
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) â†’ C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	// Normalize to platform-specific separators
	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
