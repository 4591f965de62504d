/*
Package errors provides the semantic error taxonomy for storemodel.

Backends return wrapped errors; the document store classifies every failure
into one of the sentinels below before it turns it into a result envelope,
so that callers holding a generic error envelope can still ask why:

	var (
	    ErrNotFound             = errors.New("document not found")
	    ErrStoreFault           = errors.New("store fault")
	    ErrInvalidFilter        = errors.New("invalid filter")
	    ErrUnsupported          = errors.New("operation not supported")
	    ErrEmailInUse           = errors.New("email already in use")
	    ErrVerificationRequired = errors.New("email verification required")
	    ...
	)

Usage:

	res := users.Update(ctx, patch, "123")
	if !res.OK() && errors.IsNotFound(res.Err) {
	    // the document is gone
	}

	err := errors.NewFilterError("age", "~", "unknown operator")
	err := errors.NewUnsupportedError("batch save")

The error types implement the error interface and support wrapping.
*/
package errors
