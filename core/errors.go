package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownInstruction = errors.New("core: unknown instruction")
	ErrBadSignature       = errors.New("core: signature does not match signer")
	ErrBadNonce           = errors.New("core: nonce must be the stored nonce plus one")
	ErrEmptyBatch         = errors.New("core: batch carries no instructions")
	ErrInvalidParams      = errors.New("core: invalid instruction parameters")
)

// BatchError reports the instruction that aborted a batch.
type BatchError struct {
	Index int
	Op    string
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("core: instruction %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
