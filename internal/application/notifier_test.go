package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"promixer/internal/application"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, string) error { return errors.New("offline") }

func TestNotifiers_FanOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	ns := application.Notifiers{a, failingNotifier{}, b}

	err := ns.Notify(context.Background(), "bus A2: no device")

	assert.EqualError(t, err, "offline")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.NoError(t, application.Notifiers(nil).Notify(context.Background(), "x"))
}
