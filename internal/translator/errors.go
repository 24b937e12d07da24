package translator

import (
	"errors"
	"fmt"
)

var errNoTranslateFunc = errors.New("no translate function configured")

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("translate function panicked: %v", e.value)
}
