package shopify

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Op names the storefront call that failed.
type Op string

const (
	OpAdd     Op = "add"
	OpChange  Op = "change"
	OpClear   Op = "clear"
	OpFetch   Op = "fetch"
	OpProduct Op = "product"
	OpSuggest Op = "suggest"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNetwork is a transport failure, an open breaker or a non-JSON error page.
	KindNetwork Kind = iota + 1
	// KindRejected is a well-formed refusal from the store, e.g. out of stock.
	KindRejected
	// KindParse is a response body that could not be decoded.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindRejected:
		return "rejected by store"
	case KindParse:
		return "malformed response"
	}
	return "unknown"
}

var (
	ErrNetwork         = errors.New("shopify: network failure")
	ErrRejectedByStore = errors.New("shopify: rejected by store")
	ErrParse           = errors.New("shopify: malformed response")

	ErrAddFailed       = errors.New("shopify: add to cart failed")
	ErrUpdateFailed    = errors.New("shopify: cart update failed")
	ErrFetchFailed     = errors.New("shopify: fetch failed")
	ErrProductNotFound = errors.New("shopify: product not found")
)

// Error is returned by every Client call.
type Error struct {
	Op          Op
	Kind        Kind
	Status      int
	Message     string
	Description string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("shopify %s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	switch {
	case e.Description != "":
		msg += ": " + e.Description
	case e.Message != "":
		msg += ": " + e.Message
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers test both the failure kind and the failed operation.
// Parse failures also count as network failures.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork || e.Kind == KindParse
	case ErrParse:
		return e.Kind == KindParse
	case ErrRejectedByStore:
		return e.Kind == KindRejected
	case ErrAddFailed:
		return e.Op == OpAdd && e.Kind != KindRejected
	case ErrUpdateFailed:
		return e.Op == OpChange || e.Op == OpClear
	case ErrFetchFailed:
		return e.Op == OpFetch || e.Op == OpProduct || e.Op == OpSuggest
	case ErrProductNotFound:
		return e.Op == OpProduct && e.Status == http.StatusNotFound
	}
	return false
}

// UserMessage is the short text shown to the shopper.
func (e *Error) UserMessage() string {
	if e.Kind == KindRejected {
		if e.Description != "" {
			return e.Description
		}
		if e.Message != "" {
			return e.Message
		}
	}
	switch e.Op {
	case OpAdd:
		return "Error adding to cart"
	case OpChange, OpClear:
		return "Error updating cart"
	}
	return "Something went wrong, please try again"
}

// UserMessage extracts the shopper-facing text from any error.
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return "Something went wrong, please try again"
}
