package window

import (
	"sync"
	"testing"
)

func newTestWindow() *engineWindow {
	return &engineWindow{mu: &sync.Mutex{}, keys: make(map[Key]bool), width: 10, height: 10}
}

func TestKeyState(t *testing.T) {
	w := newTestWindow()
	w.keyEvent(KeyW, true)
	w.keyEvent(KeyA, true)
	w.keyEvent(KeyW, false)
	if w.KeyDown(KeyW) || !w.KeyDown(KeyA) {
		t.Errorf("have W=%v A=%v, want W up and A down", w.KeyDown(KeyW), w.KeyDown(KeyA))
	}
}

func TestMouseLookOnlyWhileHeld(t *testing.T) {
	w := newTestWindow()
	var got [][2]float32
	w.SetMouseLookCallback(func(dx, dy float32) { got = append(got, [2]float32{dx, dy}) })

	w.cursorMoved(5, 5)
	w.lookButton(true, 10, 10)
	w.cursorMoved(13, 6)
	w.cursorMoved(14, 8)
	w.lookButton(false, 14, 8)
	w.cursorMoved(30, 30)

	want := [][2]float32{{3, -4}, {1, 2}}
	if len(got) != len(want) {
		t.Fatalf("have %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta %d: have %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResizeIgnoresMinimise(t *testing.T) {
	w := newTestWindow()
	calls := 0
	w.SetResizeCallback(func(int, int) { calls++ })
	w.resized(0, 0)
	w.resized(640, 480)
	if calls != 1 {
		t.Errorf("have %d resize callbacks, want 1", calls)
	}
	if width, height := w.Size(); width != 640 || height != 480 {
		t.Errorf("have %dx%d, want 640x480", width, height)
	}
}
