package engine_test

import (
	"testing"
	"time"

	"github.com/kaiku-daw/kaiku/engine"
)

func TestTrySendNeverBlocks(t *testing.T) {
	c := make(chan int, 1)
	if !engine.TrySend(c, 1) {
		t.Error("send to an empty channel failed")
	}
	if engine.TrySend(c, 2) {
		t.Error("send to a full channel succeeded")
	}
	if v := <-c; v != 1 {
		t.Errorf("received %d", v)
	}
}

func TestTimeoutReceive(t *testing.T) {
	c := make(chan int, 1)
	c <- 42
	if v, ok := engine.TimeoutReceive(c, time.Second); !ok || v != 42 {
		t.Errorf("got %d, %v", v, ok)
	}
	if _, ok := engine.TimeoutReceive(c, time.Millisecond); ok {
		t.Error("received from an empty channel")
	}
	close(c)
	if _, ok := engine.TimeoutReceive(c, time.Second); ok {
		t.Error("closed channel reported ok")
	}
}

func TestAudioBufferPoolResetsLength(t *testing.T) {
	b := engine.NewBroker()
	buf := b.GetAudioBuffer()
	*buf = append(*buf, [2]float32{1, 2}, [2]float32{3, 4})
	b.PutAudioBuffer(buf)
	got := b.GetAudioBuffer()
	if len(*got) != 0 {
		t.Errorf("pooled buffer came back with %d frames", len(*got))
	}
	b.PutAudioBuffer(got)
}

func TestCloseAudioRequestDoesNotBlock(t *testing.T) {
	b := engine.NewBroker()
	// two close requests: the second finds the channel full and is dropped
	if !engine.TrySend(b.CloseAudio, struct{}{}) {
		t.Error("first close request dropped")
	}
	if engine.TrySend(b.CloseAudio, struct{}{}) {
		t.Error("second close request should find the channel full")
	}
}
