package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies failures surfaced by the session manager
type Kind int

const (
	KindUnknown Kind = iota
	SessionNotFound
	UnsupportedLanguage
	InitializationFailed
	ConnectionLost
	DocumentNotOpen
	ProtocolError
	OperationFailed
	InvalidArgument
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	SessionNotFound:      "SessionNotFound",
	UnsupportedLanguage:  "UnsupportedLanguage",
	InitializationFailed: "InitializationFailed",
	ConnectionLost:       "ConnectionLost",
	DocumentNotOpen:      "DocumentNotOpen",
	ProtocolError:        "ProtocolError",
	OperationFailed:      "OperationFailed",
	InvalidArgument:      "InvalidArgument",
}

var kindCodes = map[Kind]int{
	SessionNotFound:      CodeSessionNotFound,
	UnsupportedLanguage:  CodeUnsupportedLanguage,
	InitializationFailed: CodeInitializationFailed,
	ConnectionLost:       CodeConnectionLost,
	DocumentNotOpen:      CodeDocumentNotOpen,
	ProtocolError:        CodeProtocolError,
	OperationFailed:      CodeOperationFailed,
	InvalidArgument:      CodeInvalidArgument,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Code returns the numeric error code reported to MCP clients
func (k Kind) Code() int {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return InternalError
}

// Error is the typed error carried across package boundaries.
// Only Kind is required; the remaining fields add context to the message.
type Error struct {
	Kind     Kind
	Op       string
	Session  string
	Language string
	URI      string
	Err      error

	sentinel bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}

	var ctx []string
	if e.Session != "" {
		ctx = append(ctx, "session="+e.Session)
	}
	if e.Language != "" {
		ctx = append(ctx, "language="+e.Language)
	}
	if e.URI != "" {
		ctx = append(ctx, "uri="+e.URI)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind
}

// Code returns the numeric code of the error's kind
func (e *Error) Code() int {
	return e.Kind.Code()
}

func sentinel(k Kind) *Error {
	return &Error{Kind: k, sentinel: true}
}

// Sentinels for use with errors.Is
var (
	ErrSessionNotFound      = sentinel(SessionNotFound)
	ErrUnsupportedLanguage  = sentinel(UnsupportedLanguage)
	ErrInitializationFailed = sentinel(InitializationFailed)
	ErrConnectionLost       = sentinel(ConnectionLost)
	ErrDocumentNotOpen      = sentinel(DocumentNotOpen)
	ErrProtocolError        = sentinel(ProtocolError)
	ErrOperationFailed      = sentinel(OperationFailed)
	ErrInvalidArgument      = sentinel(InvalidArgument)
)

// New creates an error of the given kind with a plain message as cause
func New(kind Kind, op, message string) *Error {
	var cause error
	if message != "" {
		cause = stderrors.New(message)
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrap classifies err under kind. A nil err still yields a non-nil error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithSession returns a copy of e annotated with a session id
func (e *Error) WithSession(id string) *Error {
	c := *e
	c.Session = id
	return &c
}

// WithLanguage returns a copy of e annotated with a language
func (e *Error) WithLanguage(language string) *Error {
	c := *e
	c.Language = language
	return &c
}

// WithURI returns a copy of e annotated with a document URI
func (e *Error) WithURI(uri string) *Error {
	c := *e
	c.URI = uri
	return &c
}

func NewSessionNotFound(id string) *Error {
	return &Error{Kind: SessionNotFound, Session: id}
}

func NewUnsupportedLanguage(language string) *Error {
	return &Error{Kind: UnsupportedLanguage, Language: language,
		Err: fmt.Errorf("no language server configured for %q", language)}
}

func NewInitializationFailed(language string, cause error) *Error {
	return &Error{Kind: InitializationFailed, Op: "initialize", Language: language, Err: cause}
}

func NewConnectionLost(language string, cause error) *Error {
	return &Error{Kind: ConnectionLost, Language: language, Err: cause}
}

func NewDocumentNotOpen(uri string) *Error {
	return &Error{Kind: DocumentNotOpen, URI: uri}
}

func NewProtocolError(language, message string, cause error) *Error {
	if cause == nil {
		cause = stderrors.New(message)
	} else if message != "" {
		cause = fmt.Errorf("%s: %w", message, cause)
	}
	return &Error{Kind: ProtocolError, Language: language, Err: cause}
}

func NewOperationFailed(method string, cause error) *Error {
	return &Error{Kind: OperationFailed, Op: method, Err: cause}
}

func NewInvalidArgument(parameter, message string) *Error {
	return &Error{Kind: InvalidArgument, Op: parameter, Err: stderrors.New(message)}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the numeric code for err, InternalError for unclassified errors
func CodeOf(err error) int {
	return KindOf(err).Code()
}

func IsSessionNotFound(err error) bool      { return stderrors.Is(err, ErrSessionNotFound) }
func IsUnsupportedLanguage(err error) bool  { return stderrors.Is(err, ErrUnsupportedLanguage) }
func IsInitializationFailed(err error) bool { return stderrors.Is(err, ErrInitializationFailed) }
func IsConnectionLost(err error) bool       { return stderrors.Is(err, ErrConnectionLost) }
func IsDocumentNotOpen(err error) bool      { return stderrors.Is(err, ErrDocumentNotOpen) }
func IsProtocolError(err error) bool        { return stderrors.Is(err, ErrProtocolError) }
func IsOperationFailed(err error) bool      { return stderrors.Is(err, ErrOperationFailed) }
func IsInvalidArgument(err error) bool      { return stderrors.Is(err, ErrInvalidArgument) }
