// Package errors provides the error taxonomy shared by the session manager and its codes.
package errors

// Standard JSON-RPC error codes as defined in RFC 7309
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes as defined in the LSP specification
const (
	ServerNotInitialized = -32002
	UnknownErrorCode     = -32001
	RequestCancelled     = -32800
	ContentModified      = -32801
	RequestFailed        = -32803
)

// Session manager error codes (range: -33000 to -33099)
const (
	// Session and process errors
	CodeSessionNotFound      = -33001
	CodeInitializationFailed = -33002
	CodeConnectionLost       = -33003

	// Document errors
	CodeDocumentNotOpen = -33020

	// Protocol and request errors
	CodeProtocolError   = -33030
	CodeOperationFailed = -33031

	// Language and argument errors
	CodeUnsupportedLanguage = -33040
	CodeInvalidArgument     = -33041
)

// Error code categories for classification and handling
const (
	CategoryJSONRPC    = "jsonrpc"
	CategoryLSP        = "lsp"
	CategorySession    = "session"
	CategoryDocument   = "document"
	CategoryProtocol   = "protocol"
	CategoryValidation = "validation"
	CategoryUnknown    = "unknown"
)

// GetErrorCodeCategory returns the category for a given error code
func GetErrorCodeCategory(code int) string {
	switch {
	case code >= -32700 && code <= -32600:
		return CategoryJSONRPC
	case code >= -32899 && code <= -32000:
		return CategoryLSP
	case code >= -33019 && code <= -33000:
		return CategorySession
	case code >= -33029 && code <= -33020:
		return CategoryDocument
	case code >= -33039 && code <= -33030:
		return CategoryProtocol
	case code >= -33049 && code <= -33040:
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}
