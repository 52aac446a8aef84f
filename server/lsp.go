package server

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/loxvm/asm"
	"github.com/chazu/loxvm/pkg/bytecode"
	"github.com/chazu/loxvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "loxvm-lsp"

var lspLog = commonlog.GetLogger("loxvm.lsp")

// LspServer provides editor support for loxvm assembly (.lxa) files:
// diagnostics, hover and completion. Diagnostics dry-run each assembled
// document on the VM to flag runtime errors as warnings.
type LspServer struct {
	worker *VMWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given VM.
func NewLSP(v *vm.VM) *LspServer {
	s := &LspServer{
		worker:  NewVMWorker(v),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("loxvm LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDocument(string(uri), text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(string(uri), whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[uri]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

// complete returns mnemonics, full OP_ names and directives starting with
// prefix, ignoring case.
func complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	for _, name := range asm.Mnemonics() {
		if !strings.HasPrefix(name, lowerPrefix) {
			continue
		}
		op, _ := asm.Lookup(name)
		kind := protocol.CompletionItemKindKeyword
		detail := op.String()
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	for _, op := range bytecode.AllOpcodes() {
		full := op.String()
		if !strings.HasPrefix(strings.ToLower(full), lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindKeyword
		detail := fmt.Sprintf("opcode 0x%02X", byte(op))
		items = append(items, protocol.CompletionItem{
			Label:      full,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &full,
		})
	}

	for _, dir := range asm.Directives {
		if !strings.HasPrefix(dir, lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindSnippet
		detail := "directive"
		dirCopy := dir
		items = append(items, protocol.CompletionItem{
			Label:      dir,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &dirCopy,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

// hover describes the mnemonic, directive or number under pos.
func hover(text string, pos protocol.Position) *protocol.Hover {
	tokens := asm.Tokenize(text)
	tok, ok := asm.TokenAt(tokens, int(pos.Line)+1, int(pos.Character)+1)
	if !ok {
		return nil
	}

	var value string
	switch tok.Kind {
	case asm.TokenWord:
		op, ok := asm.Lookup(tok.Text)
		if !ok {
			return nil
		}
		info, _ := bytecode.GetOpcodeInfo(op)
		value = fmt.Sprintf("**%s** (0x%02X)\n\nPops %d, pushes %d. Operand bytes: %d.",
			info.Name, byte(op), info.StackPop, info.StackPush, info.OperandLen)
	case asm.TokenDirective:
		if strings.ToLower(tok.Text) != ".byte" {
			return nil
		}
		value = "**.byte** N\n\nEmits the raw byte N (0-255)."
	case asm.TokenNumber:
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil
		}
		value = fmt.Sprintf("constant `%s`", bytecode.Value(v))
	default:
		return nil
	}

	line := protocol.UInteger(tok.Line - 1)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
		Range: &protocol.Range{
			Start: protocol.Position{Line: line, Character: protocol.UInteger(tok.Col - 1)},
			End:   protocol.Position{Line: line, Character: protocol.UInteger(tok.End() - 1)},
		},
	}
}

// diagnose assembles text and dry-runs the result. Assembly errors are
// errors; runtime failures are warnings.
func (s *LspServer) diagnose(text string) []protocol.Diagnostic {
	source := lspName

	chunk, err := asm.Assemble(text)
	if err != nil {
		severity := protocol.DiagnosticSeverityError
		line, col := 0, 0
		var aerr *asm.Error
		if errors.As(err, &aerr) {
			line, col = aerr.Line-1, aerr.Col-1
		}
		return []protocol.Diagnostic{{
			Range:    pointRange(line, col),
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}

	result, err := s.worker.Do(func(v *vm.VM) any {
		_, runErr := v.Execute(chunk)
		return runErr
	})
	if err != nil {
		lspLog.Errorf("dry run failed: %s", err)
		return nil
	}
	runErr, _ := result.(error)
	if runErr == nil {
		return nil
	}

	severity := protocol.DiagnosticSeverityWarning
	line := 0
	var rerr *vm.RuntimeError
	if errors.As(runErr, &rerr) && rerr.Line > 0 {
		line = rerr.Line - 1
	}
	return []protocol.Diagnostic{{
		Range:    pointRange(line, 0),
		Severity: &severity,
		Source:   &source,
		Message:  runErr.Error(),
	}}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnose(text)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func pointRange(line, col int) protocol.Range {
	pos := protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
	return protocol.Range{Start: pos, End: pos}
}

// extractPrefix returns the partial mnemonic or directive ending at pos.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the word
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

func boolPtr(b bool) *bool {
	return &b
}
