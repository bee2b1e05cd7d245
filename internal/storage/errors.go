package storage

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"reflect"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"
)

// DefaultErrorKind is reported when an error carries no better name.
const DefaultErrorKind = "BackendError"

// ErrorKind names the kind of a backend failure without exposing its
// details. Provider error codes are preferred, e.g.
// AuthorizationPermissionMismatch or AccessDenied; otherwise the name of the
// deepest exported error type in the chain is used.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var azErr *azcore.ResponseError
	if errors.As(err, &azErr) && azErr.ErrorCode != "" {
		return azErr.ErrorCode
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if len(gErr.Errors) > 0 && gErr.Errors[0].Reason != "" {
			return gErr.Errors[0].Reason
		}
		return fmt.Sprintf("GoogleAPIError%d", gErr.Code)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}

	return typeName(err)
}

// typeName walks the wrap chain and returns the name of the deepest error
// with an exported type, skipping wrappers such as fmt's. The walk stops at
// the first error from package net, so a dial failure is reported as OpError
// rather than as the syscall errno beneath it.
func typeName(err error) string {
	kind := DefaultErrorKind
	for ; err != nil; err = errors.Unwrap(err) {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if name := t.Name(); token.IsExported(name) {
			kind = name
		}
		if t.PkgPath() == "net" {
			break
		}
	}
	return kind
}
