package pkguid

// StringID mints the string ids of events, commits and requests.
type StringID interface {
	Generate() string
}

// NumberID mints the generation token a staged file gets at admission. Later
// tokens are larger, so a re-admitted file never reuses an old token.
type NumberID interface {
	Generate() int64
}
