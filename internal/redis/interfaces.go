package redis

import "porter/internal/repository"

// Ensure concrete types implement interfaces.
var (
	_ repository.CredentialRepository = (*CredentialStore)(nil)
)
