package control

import (
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestMailboxLatestWins(t *testing.T) {
	var m Mailbox[VelocityCommand]

	_, ok := m.Take()
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, m.Pending(), test.ShouldBeFalse)

	m.Post(VelocityCommand{Linear: r3.Vector{X: 0.1}})
	m.Post(VelocityCommand{Linear: r3.Vector{X: 0.2}})
	test.That(t, m.Pending(), test.ShouldBeTrue)

	cmd, ok := m.Take()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Linear.X, test.ShouldEqual, 0.2)

	_, ok = m.Take()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMailboxConcurrentPosts(t *testing.T) {
	var m Mailbox[int]
	var wg sync.WaitGroup
	taken := 0

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Post(i)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			if _, ok := m.Take(); ok {
				taken++
			}
		}
	}()
	wg.Wait()
	<-done

	if _, ok := m.Take(); ok {
		taken++
	}
	test.That(t, taken, test.ShouldBeGreaterThanOrEqualTo, 1)
	test.That(t, taken, test.ShouldBeLessThanOrEqualTo, 100)
}
