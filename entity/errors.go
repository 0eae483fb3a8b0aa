package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks failures of an RPC or relayer endpoint. Callers may retry.
	ErrNetwork = errors.New("network error")
	// ErrConfiguration marks a missing or invalid static configuration entry.
	ErrConfiguration = errors.New("configuration error")
	// ErrPrecondition marks a call made with arguments that can never succeed.
	ErrPrecondition = errors.New("precondition failed")
)

var (
	ErrMissingSourceChain = fmt.Errorf("%w: source chain id is required for non-native tokens", ErrPrecondition)
	ErrMissingMsgHash     = fmt.Errorf("%w: bridge transaction has no message hash", ErrPrecondition)
)
