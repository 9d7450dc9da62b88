package residual

import "github.com/pkg/errors"

var (
	// ErrDuplicateFrame is returned when a residual would constrain the same frame twice.
	ErrDuplicateFrame = errors.New("residual constrains the same frame twice")
	// ErrBlockMismatch is returned when a cost function's blocks do not match the variables
	// the residual resolves to.
	ErrBlockMismatch = errors.New("cost function blocks do not match residual parameters")
)

func newDuplicateFrameError(kind Kind, id int64) error {
	return errors.Wrapf(ErrDuplicateFrame, "%s residual, frame %d", kind, id)
}
