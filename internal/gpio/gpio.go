// Package gpio requests single GPIO lines through the Linux character
// device.
package gpio

// Input is a requested input line. Value reports the logical level, so an
// active-low line reads 1 when pulled low.
type Input interface {
	Value() (int, error)
	Close() error
}

type Output interface {
	SetValue(v int) error
	Close() error
}
