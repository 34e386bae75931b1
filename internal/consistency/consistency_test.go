package consistency

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecklist_AllPass(t *testing.T) {
	cl := New()
	cl.Check(func() error { return nil })
	cl.Check(func() error { return nil })
	require.NoError(t, cl.Err())
}

func TestChecklist_AccumulatesEveryFailure(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	ran := 0

	cl := New()
	cl.Check(func() error { ran++; return errA })
	cl.Check(func() error { ran++; return nil })
	cl.Check(func() error { ran++; return errB })

	require.Equal(t, 3, ran, "every check must run regardless of earlier failures")

	err := cl.Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "a failed")
	require.Contains(t, err.Error(), "b failed")

	errs, ok := err.(Errors)
	require.True(t, ok)
	require.Equal(t, Errors{errA, errB}, errs)
}

func TestErrors_Error_SingleVsMultiple(t *testing.T) {
	single := Errors{errors.New("only")}
	require.Equal(t, "only", single.Error())

	multi := Errors{errors.New("x"), errors.New("y")}
	require.Equal(t, "multiple errors: x, y", multi.Error())

	require.Equal(t, "", Errors(nil).Error())
}
