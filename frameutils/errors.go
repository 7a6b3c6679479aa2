package frameutils

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// PowerOfTwoError is the error returned from CheckPow2 if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInit marks failures to create a device, queue, fence, swapchain or descriptor table. It is fatal
	// to the initialization step that produced it.
	ErrInit = cerrors.New("initialization failed")
	// ErrNotInitialized is returned by operations invoked on an object whose Initialize method has not
	// succeeded
	ErrNotInitialized = cerrors.New("object is not initialized")
	// ErrPool marks a recording list that could not be reset for recording. The frame that requested it
	// should be dropped; the next frame gets a fresh attempt.
	ErrPool = cerrors.New("recording list could not be reset")
	// ErrCapacity marks an exhausted descriptor table. Tables never grow, so this indicates a
	// configuration error.
	ErrCapacity = cerrors.New("descriptor table exhausted")
	// ErrPresent marks a failed presentation
	ErrPresent = cerrors.New("present failed")
	// ErrDeviceLost marks a device removed or reset condition. Objects created from the device can no
	// longer be used.
	ErrDeviceLost = cerrors.New("device lost")
	// ErrValidation marks an operation invoked out of order
	ErrValidation = cerrors.New("validation failed")
	// ErrWaitTimeout is returned from a fence wait that was given a timeout and did not complete within it
	ErrWaitTimeout = cerrors.New("fence wait timed out")
)
