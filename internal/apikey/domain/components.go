package domain

// TokenComponents is the parse result of a plaintext token. It is never persisted.
type TokenComponents struct {
	Prefix      string
	Environment string
	Secret      string
	FullToken   string
}
