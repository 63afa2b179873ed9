package service

import "errors"

// ErrRoleNotPermitted is returned when the process's configured service role
// does not allow the requested operation
var ErrRoleNotPermitted = errors.New("operation not permitted for configured service role")

// ErrInvalidRequest is returned when a request is structurally malformed,
// e.g. a decrypt supplying neither or both of resource_id and encrypted_data
var ErrInvalidRequest = errors.New("invalid request")
