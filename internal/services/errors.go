package services

// ErrorKind classifies execution failures so the HTTP layer can map them
// to status codes and operators can tell "can't reach host" from
// "key rejected".
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "server_not_found"
	KindLedger     ErrorKind = "ledger"
	KindKeyParse   ErrorKind = "key_parse"
	KindHandshake  ErrorKind = "handshake"
	KindAuth       ErrorKind = "authentication"
	KindTimeout    ErrorKind = "timeout"
	KindRemote     ErrorKind = "remote"
	KindInternal   ErrorKind = "internal"
)

type ExecError struct {
	Kind ErrorKind
	Err  error
}

func (e *ExecError) Error() string { return e.Err.Error() }

func (e *ExecError) Unwrap() error { return e.Err }

func execErr(kind ErrorKind, err error) *ExecError {
	return &ExecError{Kind: kind, Err: err}
}
