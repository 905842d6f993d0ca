// Package input implements the Wayland-native remote input injector
// used by the WlrNative strategy (spec §4.C / §"Session Strategy
// Layer"): zwlr_virtual_pointer_v1 and zwp_virtual_keyboard_v1, needing
// neither /dev/uinput nor root, grounded on the teacher's
// wayland_input.go.
package input

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/rs/zerolog/log"
)

// WaylandInjector owns one virtual pointer and one virtual keyboard
// device bound to the compositor's Wayland display.
type WaylandInjector struct {
	pointerManager  *virtual_pointer.VirtualPointerManager
	pointer         *virtual_pointer.VirtualPointer
	keyboardManager *virtual_keyboard.VirtualKeyboardManager
	keyboard        *virtual_keyboard.VirtualKeyboard

	mu     sync.Mutex
	closed bool

	screenWidth, screenHeight int
	currentX, currentY        float64
	positionInitialized       bool
}

// NewWaylandInjector binds virtual pointer and keyboard globals. It
// fails fast if either zwlr_virtual_pointer_manager_v1 or
// zwp_virtual_keyboard_manager_v1 is absent, which is exactly the probe
// the WlrNative strategy's Available() needs before committing to this
// strategy.
func NewWaylandInjector(ctx context.Context, screenWidth, screenHeight int) (*WaylandInjector, error) {
	pointerManager, err := virtual_pointer.NewVirtualPointerManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("input: virtual pointer manager: %w", err)
	}
	pointer, err := pointerManager.CreatePointer()
	if err != nil {
		pointerManager.Close()
		return nil, fmt.Errorf("input: create virtual pointer: %w", err)
	}
	keyboardManager, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
	if err != nil {
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("input: virtual keyboard manager: %w", err)
	}
	keyboard, err := keyboardManager.CreateKeyboard()
	if err != nil {
		keyboardManager.Close()
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("input: create virtual keyboard: %w", err)
	}

	log.Info().Int("width", screenWidth).Int("height", screenHeight).Msg("input: wayland injector bound")

	return &WaylandInjector{
		pointerManager:  pointerManager,
		pointer:         pointer,
		keyboardManager: keyboardManager,
		keyboard:        keyboard,
		screenWidth:     screenWidth,
		screenHeight:    screenHeight,
		currentX:        float64(screenWidth) / 2,
		currentY:        float64(screenHeight) / 2,
	}, nil
}

func (w *WaylandInjector) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	record(w.keyboard.Close())
	record(w.keyboardManager.Close())
	record(w.pointer.Close())
	record(w.pointerManager.Close())
	return first
}

// KeyDown/KeyUp take an RDP VK code and silently drop codes with no
// evdev mapping, matching the teacher's "unknown VK -> no-op" behavior
// rather than surfacing a per-keystroke error to the RDP session loop.
func (w *WaylandInjector) KeyDown(vk uint16) error { return w.key(vk, virtual_keyboard.KeyStatePressed) }
func (w *WaylandInjector) KeyUp(vk uint16) error   { return w.key(vk, virtual_keyboard.KeyStateReleased) }

func (w *WaylandInjector) key(vk uint16, state virtual_keyboard.KeyState) error {
	evdev, ok := vkToEvdevCode(vk)
	if !ok {
		log.Debug().Uint16("vk", vk).Msg("input: no evdev mapping, dropping")
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.keyboard.Key(time.Now(), uint32(evdev), state)
}

// PointerMoveRelative injects a relative pointer move. Wayland's virtual
// pointer protocol has no absolute positioning, so PointerMoveAbsolute
// is built on top of this by tracking position locally and emitting the
// delta, the same reconciliation the teacher's MouseMoveAbsolute does.
func (w *WaylandInjector) PointerMoveRelative(dx, dy float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.currentX = clamp(w.currentX+dx, 0, float64(w.screenWidth)-1)
	w.currentY = clamp(w.currentY+dy, 0, float64(w.screenHeight)-1)
	w.pointer.MoveRelative(dx, dy)
	return nil
}

// PointerMoveAbsolute takes x, y as fractions of the desktop (0..1), the
// coordinate space RDP's Input PDUs use.
func (w *WaylandInjector) PointerMoveAbsolute(x, y float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	targetX := x * float64(w.screenWidth)
	targetY := y * float64(w.screenHeight)

	fromX, fromY := w.currentX, w.currentY
	if !w.positionInitialized {
		fromX, fromY = float64(w.screenWidth)/2, float64(w.screenHeight)/2
		w.positionInitialized = true
	}

	dx, dy := targetX-fromX, targetY-fromY
	w.currentX, w.currentY = targetX, targetY
	if dx != 0 || dy != 0 {
		w.pointer.MoveRelative(dx, dy)
	}
	return nil
}

// Button is the fixed three-button set RDP's pointer PDUs carry.
type Button int

const (
	ButtonLeft Button = iota + 1
	ButtonMiddle
	ButtonRight
)

func (w *WaylandInjector) ButtonDown(b Button) error { return w.button(b, virtual_pointer.BUTTON_STATE_PRESSED) }
func (w *WaylandInjector) ButtonUp(b Button) error   { return w.button(b, virtual_pointer.BUTTON_STATE_RELEASED) }

func (w *WaylandInjector) button(b Button, state uint32) error {
	var code uint32
	switch b {
	case ButtonLeft:
		code = virtual_pointer.BTN_LEFT
	case ButtonMiddle:
		code = virtual_pointer.BTN_MIDDLE
	case ButtonRight:
		code = virtual_pointer.BTN_RIGHT
	default:
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.pointer.Button(time.Now(), code, state)
	w.pointer.Frame()
	return nil
}

// Wheel injects a scroll event. deltaY > 0 scrolls down, matching RDP's
// pointer wheel PDU sign convention.
func (w *WaylandInjector) Wheel(deltaX, deltaY float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if deltaY != 0 {
		w.pointer.ScrollVertical(deltaY)
	}
	if deltaX != 0 {
		w.pointer.ScrollHorizontal(deltaX)
	}
	w.pointer.Frame()
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
