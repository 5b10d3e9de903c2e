package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "value expected"))

	done := make(chan struct{})
	close(done)
	WaitForChannel(t, done, ShortTestTimeout, "closed channel should release")

	AssertNoReceive(t, make(chan string), 10*time.Millisecond, "nothing expected")
}
