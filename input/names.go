package input

var keyNames = map[Key]string{
	KeyUnknown: "KeyUnknown",

	KeyA: "KeyA", KeyB: "KeyB", KeyC: "KeyC", KeyD: "KeyD", KeyE: "KeyE",
	KeyF: "KeyF", KeyG: "KeyG", KeyH: "KeyH", KeyI: "KeyI", KeyJ: "KeyJ",
	KeyK: "KeyK", KeyL: "KeyL", KeyM: "KeyM", KeyN: "KeyN", KeyO: "KeyO",
	KeyP: "KeyP", KeyQ: "KeyQ", KeyR: "KeyR", KeyS: "KeyS", KeyT: "KeyT",
	KeyU: "KeyU", KeyV: "KeyV", KeyW: "KeyW", KeyX: "KeyX", KeyY: "KeyY",
	KeyZ: "KeyZ",

	Key0: "Key0", Key1: "Key1", Key2: "Key2", Key3: "Key3", Key4: "Key4",
	Key5: "Key5", Key6: "Key6", Key7: "Key7", Key8: "Key8", Key9: "Key9",

	KeyF1: "KeyF1", KeyF2: "KeyF2", KeyF3: "KeyF3", KeyF4: "KeyF4",
	KeyF5: "KeyF5", KeyF6: "KeyF6", KeyF7: "KeyF7", KeyF8: "KeyF8",
	KeyF9: "KeyF9", KeyF10: "KeyF10", KeyF11: "KeyF11", KeyF12: "KeyF12",

	KeyKeypad0: "KeyKeypad0", KeyKeypad1: "KeyKeypad1", KeyKeypad2: "KeyKeypad2",
	KeyKeypad3: "KeyKeypad3", KeyKeypad4: "KeyKeypad4", KeyKeypad5: "KeyKeypad5",
	KeyKeypad6: "KeyKeypad6", KeyKeypad7: "KeyKeypad7", KeyKeypad8: "KeyKeypad8",
	KeyKeypad9:        "KeyKeypad9",
	KeyKeypadDecimal:  "KeyKeypadDecimal",
	KeyKeypadDivide:   "KeyKeypadDivide",
	KeyKeypadMultiply: "KeyKeypadMultiply",
	KeyKeypadSubtract: "KeyKeypadSubtract",
	KeyKeypadAdd:      "KeyKeypadAdd",
	KeyKeypadEnter:    "KeyKeypadEnter",
	KeyKeypadEqual:    "KeyKeypadEqual",

	KeyLeftShift: "KeyLeftShift", KeyRightShift: "KeyRightShift",
	KeyLeftControl: "KeyLeftControl", KeyRightControl: "KeyRightControl",
	KeyLeftAlt: "KeyLeftAlt", KeyRightAlt: "KeyRightAlt",
	KeyLeftSuper: "KeyLeftSuper", KeyRightSuper: "KeyRightSuper",

	KeyUp: "KeyUp", KeyDown: "KeyDown", KeyLeft: "KeyLeft", KeyRight: "KeyRight",
	KeyHome: "KeyHome", KeyEnd: "KeyEnd", KeyPageUp: "KeyPageUp", KeyPageDown: "KeyPageDown",
	KeyInsert: "KeyInsert", KeyDelete: "KeyDelete",

	KeyEscape: "KeyEscape", KeyEnter: "KeyEnter", KeyTab: "KeyTab",
	KeyBackspace: "KeyBackspace", KeySpace: "KeySpace",
	KeyCapsLock: "KeyCapsLock", KeyNumLock: "KeyNumLock", KeyScrollLock: "KeyScrollLock",
	KeyPrintScreen: "KeyPrintScreen", KeyPause: "KeyPause",

	KeyMediaPlayPause:  "KeyMediaPlayPause",
	KeyMediaStop:       "KeyMediaStop",
	KeyMediaNext:       "KeyMediaNext",
	KeyMediaPrevious:   "KeyMediaPrevious",
	KeyMediaVolumeUp:   "KeyMediaVolumeUp",
	KeyMediaVolumeDown: "KeyMediaVolumeDown",
	KeyMediaMute:       "KeyMediaMute",

	KeyAny: "KeyAny",
}
