// Package wire holds the line protocol spoken on the control channel: reply codes,
// command parsing, multi-line replies and the passive-mode address encoding.
package wire

// Reply codes used on the control channel.
const (
	CodeOpeningData     = 150
	CodeTypeOK          = 200
	CodeStatus          = 211
	CodeServiceReady    = 220
	CodeClosing         = 221
	CodeTransferDone    = 226
	CodePassive         = 227
	CodeLoggedIn        = 230
	CodeNeedPassword    = 331
	CodeCantOpenData    = 425
	CodeTransferAborted = 426
	CodeNoIDAvailable   = 452
	CodeSyntaxError     = 501
	CodeNotImplemented  = 502
	CodeNotFound        = 550
)
