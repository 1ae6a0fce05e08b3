package reading

import (
	"errors"
	"fmt"
)

const LayoutFreestyle = "freestyle"

var (
	ErrUnknownLayout    = errors.New("unknown layout")
	ErrCapacityExceeded = errors.New("selected cards exceed layout capacity")
	ErrInvalidStep      = errors.New("invalid reading step")
)

var layoutCapacity = map[string]int{
	"single-card":  1,
	"three-card":   3,
	"five-card":    5,
	"horseshoe":    7,
	"celtic-cross": 10,
}

// LayoutCapacity reports how many cards a layout holds. bounded is false for
// freestyle, which accepts any number of cards.
func LayoutCapacity(layout string) (capacity int, bounded bool, err error) {
	if layout == LayoutFreestyle {
		return 0, false, nil
	}
	c, ok := layoutCapacity[layout]
	if !ok {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}
	return c, true, nil
}

// CheckCapacity validates a card count against the given layout. A session
// without a layout has nothing to check against.
func CheckCapacity(layout *string, cards int) error {
	if layout == nil {
		return nil
	}
	capacity, bounded, err := LayoutCapacity(*layout)
	if err != nil {
		return err
	}
	if bounded && cards > capacity {
		return fmt.Errorf("%w: layout %s holds %d, got %d", ErrCapacityExceeded, *layout, capacity, cards)
	}
	return nil
}
