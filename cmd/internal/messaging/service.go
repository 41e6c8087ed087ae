package messaging

import (
	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Service bundles the messaging components over one store.
type Service struct {
	Directory *Directory
	Feed      *Feed
	List      *List

	store   docstore.Store
	options []Option
	opts    options
}

// NewService constructs the messaging components over store.
func NewService(store docstore.Store, opts ...Option) *Service {
	return &Service{
		Directory: NewDirectory(store, opts...),
		Feed:      NewFeed(store, opts...),
		List:      NewList(store, opts...),
		store:     store,
		options:   opts,
		opts:      buildOptions(opts),
	}
}
