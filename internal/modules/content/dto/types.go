package dto

import "dashext/internal/modules/content/domain"

type ResolveInput struct {
	TargetPath string
	// Entry optionally names a file inside the extension directory.
	Entry string
}

type ResolveOutput struct {
	Reference domain.Reference
}

type ServerStatus struct {
	Running bool
	Addr    string
	BaseURL string
}
