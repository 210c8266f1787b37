package storage

import (
	"context"
)

// Object is one upload to persist
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// ObjectStore writes objects to a blob backend
type ObjectStore interface {
	Put(ctx context.Context, obj Object) error
	Name() string
}
