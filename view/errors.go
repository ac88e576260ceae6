package view

import "github.com/maxpoletaev/cyclon/internal/baseerror"

// ErrEmptyView is returned by any operation that needs to pick a node
// out of a View that currently holds none.
var ErrEmptyView = baseerror.New("view: view is empty")

// ErrSelfNotAllowed is returned by ManualInsert when the descriptor's
// address matches the view's own address; a view never stores a
// descriptor for itself. RxNodes drops such descriptors without an error.
var ErrSelfNotAllowed = baseerror.New("view: cannot insert self")
