package sparkle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWaitForMessage_NotPublished(t *testing.T) {
	c, _ := newTestClient(t)
	id, err := c.CreateIdentity(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := id.WaitForMessage(testContext(t)); !errors.Is(err, ErrIdentityNotPublished) {
		t.Errorf("WaitForMessage() error = %v, want ErrIdentityNotPublished", err)
	}
	if _, err := id.WaitForMessages(testContext(t), 1); !errors.Is(err, ErrIdentityNotPublished) {
		t.Errorf("WaitForMessages() error = %v, want ErrIdentityNotPublished", err)
	}
}

func TestWaitForMessage_Timeout(t *testing.T) {
	c, _ := newTestClient(t)
	id := newPublished(t, c)

	start := time.Now()
	_, err := id.WaitForMessage(context.Background(), WithWaitTimeout(100*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForMessage() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("WaitForMessage() ignored the wait timeout")
	}
}

func TestWaitForMessage_ArrivesLater(t *testing.T) {
	c, _ := newTestClient(t)
	alice := newPublished(t, c)
	bob := newPublished(t, c)
	ctx := testContext(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		alice.SendTo(ctx, bob.Identifier(), "late")
	}()

	msg, err := bob.WaitForMessage(ctx, WithWaitTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("WaitForMessage() error = %v", err)
	}
	if msg.Text != "late" {
		t.Errorf("Text = %q, want late", msg.Text)
	}
}

func TestWaitForMessages(t *testing.T) {
	c, _ := newTestClient(t)
	alice := newPublished(t, c)
	bob := newPublished(t, c)
	ctx := testContext(t)

	t.Run("negative count", func(t *testing.T) {
		if _, err := bob.WaitForMessages(ctx, -1); err == nil {
			t.Error("WaitForMessages(-1) should fail")
		}
	})

	t.Run("zero count", func(t *testing.T) {
		got, err := bob.WaitForMessages(ctx, 0)
		if err != nil || len(got) != 0 {
			t.Errorf("WaitForMessages(0) = %v, %v", got, err)
		}
	})

	t.Run("mixed history and live", func(t *testing.T) {
		if _, err := alice.SendTo(ctx, bob.Identifier(), "m0"); err != nil {
			t.Fatal(err)
		}
		go func() {
			for i := 1; i < 3; i++ {
				time.Sleep(20 * time.Millisecond)
				alice.SendTo(ctx, bob.Identifier(), fmt.Sprintf("m%d", i))
			}
		}()

		got, err := bob.WaitForMessages(ctx, 3, WithFrom(alice.Identifier()), WithWaitTimeout(5*time.Second))
		if err != nil {
			t.Fatalf("WaitForMessages() error = %v", err)
		}
		seen := make(map[string]bool)
		for _, m := range got {
			if seen[m.ID] {
				t.Errorf("message %s returned twice", m.ID)
			}
			seen[m.ID] = true
		}
		if len(got) != 3 {
			t.Errorf("len = %d, want 3", len(got))
		}
	})
}

func TestWatch(t *testing.T) {
	c, _ := newTestClient(t)
	alice := newPublished(t, c)
	bob := newPublished(t, c)

	ctx, cancel := context.WithCancel(testContext(t))
	ch := bob.Watch(ctx)

	if _, err := alice.SendTo(ctx, bob.Identifier(), "watched"); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-ch:
		if m.Text != "watched" {
			t.Errorf("Text = %q", m.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() delivered nothing")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for c.subs.count(bob.Identifier()) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := c.subs.count(bob.Identifier()); n != 0 {
		t.Errorf("subscriptions after cancel = %d, want 0", n)
	}
}

func TestWatchFunc(t *testing.T) {
	c, _ := newTestClient(t)
	alice := newPublished(t, c)
	bob := newPublished(t, c)

	ctx, cancel := context.WithCancel(testContext(t))
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		bob.WatchFunc(ctx, func(m *Message) {
			got <- m.Text
			cancel()
		})
		close(done)
	}()

	// Give WatchFunc time to subscribe.
	time.Sleep(20 * time.Millisecond)
	if _, err := alice.SendTo(testContext(t), bob.Identifier(), "fn"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchFunc did not return after cancel")
	}
	if text := <-got; text != "fn" {
		t.Errorf("Text = %q, want fn", text)
	}
}

func TestWatchIdentities(t *testing.T) {
	c, _ := newTestClient(t)
	alice := newPublished(t, c)
	bob := newPublished(t, c)
	carol := newPublished(t, c)

	t.Run("no identities", func(t *testing.T) {
		ch := c.WatchIdentities(testContext(t))
		if _, ok := <-ch; ok {
			t.Error("channel should be closed")
		}
	})

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	ch := c.WatchIdentities(ctx, bob, carol)

	if _, err := alice.SendTo(ctx, bob.Identifier(), "to bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.SendTo(ctx, carol.Identifier(), "to carol"); err != nil {
		t.Fatal(err)
	}

	got := make(map[string]string)
	for len(got) < 2 {
		select {
		case ev := <-ch:
			got[ev.Identity.Identifier()] = ev.Message.Text
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d events, want 2", len(got))
		}
	}
	if got[bob.Identifier()] != "to bob" || got[carol.Identifier()] != "to carol" {
		t.Errorf("events = %v", got)
	}
}
