// Package input defines the scheduler-facing key enumeration and the
// mapping contract that translates OS scan codes into it. The mapping
// table itself is supplied by whatever windowing layer sits outside this
// module; only the enum and the KeyAny virtual-key semantics are in scope
// here.
package input

// Key is a dense enumeration of logical keys, independent of any
// particular OS scan code set.
type Key int32

const (
	KeyUnknown Key = iota

	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ

	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9

	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12

	KeyKeypad0
	KeyKeypad1
	KeyKeypad2
	KeyKeypad3
	KeyKeypad4
	KeyKeypad5
	KeyKeypad6
	KeyKeypad7
	KeyKeypad8
	KeyKeypad9
	KeyKeypadDecimal
	KeyKeypadDivide
	KeyKeypadMultiply
	KeyKeypadSubtract
	KeyKeypadAdd
	KeyKeypadEnter
	KeyKeypadEqual

	KeyLeftShift
	KeyRightShift
	KeyLeftControl
	KeyRightControl
	KeyLeftAlt
	KeyRightAlt
	KeyLeftSuper
	KeyRightSuper

	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyInsert
	KeyDelete

	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeySpace
	KeyCapsLock
	KeyNumLock
	KeyScrollLock
	KeyPrintScreen
	KeyPause

	KeyMediaPlayPause
	KeyMediaStop
	KeyMediaNext
	KeyMediaPrevious
	KeyMediaVolumeUp
	KeyMediaVolumeDown
	KeyMediaMute

	// KeyAny is a virtual key: it is never itself the target of a scan code
	// mapping, but State reports it pressed whenever any physical key
	// transitions down, letting callers listen for "any
	// key" input without enumerating the whole table.
	KeyAny

	keyCount
)

// Count is the number of real entries in the Key enumeration, including
// KeyAny but excluding the sentinel keyCount.
const Count = int(keyCount)

// String names k, falling back to "KeyUnknown" for an unrecognized value.
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "KeyUnknown"
}

// Mapping translates an OS-layer scan code into a Key. Implementations are
// expected to be total functions: an unrecognized scan code maps to
// KeyUnknown rather than panicking or erroring.
type Mapping interface {
	Translate(scanCode int) Key
}

// MappingFunc adapts a function to Mapping.
type MappingFunc func(scanCode int) Key

// Translate implements Mapping.
func (f MappingFunc) Translate(scanCode int) Key { return f(scanCode) }

// State tracks the pressed/released state of every Key across a frame,
// including the KeyAny aggregate. It is not safe for concurrent use; a
// single owner (the input-polling goroutine) is expected to call Begin,
// Press/Release, and then hand the frame's snapshot off to readers.
type State struct {
	down    [keyCount]bool
	pressed [keyCount]bool // transitioned down this frame
	any     bool
}

// Begin clears the per-frame transition flags ahead of a new frame's input
// events. Down/up state itself persists across Begin calls.
func (s *State) Begin() {
	for i := range s.pressed {
		s.pressed[i] = false
	}
	s.any = false
}

// Press marks k as down, and as having transitioned down this frame unless
// it was already held. KeyAny is marked pressed on any real key's
// transition.
func (s *State) Press(k Key) {
	if int(k) < 0 || int(k) >= int(keyCount) {
		return
	}
	if !s.down[k] {
		s.pressed[k] = true
		if k != KeyAny {
			s.any = true
			s.pressed[KeyAny] = true
		}
	}
	s.down[k] = true
}

// Release marks k as no longer down.
func (s *State) Release(k Key) {
	if int(k) < 0 || int(k) >= int(keyCount) {
		return
	}
	s.down[k] = false
}

// Down reports whether k is currently held. For KeyAny it reports whether
// any key transitioned down during the current frame.
func (s *State) Down(k Key) bool {
	if int(k) < 0 || int(k) >= int(keyCount) {
		return false
	}
	if k == KeyAny {
		return s.any
	}
	return s.down[k]
}

// Pressed reports whether k transitioned down during the current frame.
func (s *State) Pressed(k Key) bool {
	if int(k) < 0 || int(k) >= int(keyCount) {
		return false
	}
	return s.pressed[k]
}
