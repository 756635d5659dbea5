package events

import "testing"

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("req-1")
	defer unsubscribe()

	h.Publish("req-1", FrameProgress, map[string]any{"stage": "accepted"})

	select {
	case frame := <-ch:
		if frame.Type != FrameProgress || frame.RequestID != "req-1" {
			t.Errorf("frame = %+v, want progress/req-1", frame)
		}
		if frame.ContractsVersion != ContractsVersion {
			t.Errorf("contractsVersion = %q, want %q", frame.ContractsVersion, ContractsVersion)
		}
	default:
		t.Fatal("expected a frame, got none")
	}
}

func TestHub_PublishWithNoSubscriberIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish("nobody-listening", FrameError, map[string]any{"code": "X"})
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("req-1")
	unsubscribe()

	h.Publish("req-1", FrameReady, nil)

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestHub_MultipleSubscribersEachReceiveAFrame(t *testing.T) {
	h := NewHub()
	ch1, unsub1 := h.Subscribe("req-1")
	ch2, unsub2 := h.Subscribe("req-1")
	defer unsub1()
	defer unsub2()

	h.Publish("req-1", FrameProgress, nil)

	for _, ch := range []chan Frame{ch1, ch2} {
		select {
		case <-ch:
		default:
			t.Error("expected both subscribers to receive the frame")
		}
	}
}
