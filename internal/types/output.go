package types

// TableRenderer is implemented by results that know how to render
// themselves as a table
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}
