package config

// DefaultTOML is the starter file written by "gesturesd config init"
const DefaultTOML = `# gesturesd configuration

[daemon]
# native (X11 XTEST), helper (privileged uinput helper) or dry-run
backend = "native"
shell = "/bin/sh"
# device nodes to open, empty means every touchpad
devices = []
# what to do when the finger count changes mid-gesture: ignore or restart
finger_policy = "ignore"

[recognition]
# a gesture has no direction until it travels this far
swipe_threshold = 2.0
pinch_threshold = 0.05
rotate_threshold = 5.0
# one-shot bindings need this much motion by the end of the gesture
oneshot_swipe = 50.0
oneshot_pinch = 0.15
oneshot_rotate = 20.0
hold_duration = "300ms"
diagonals = true

[touchpad]
glob = "/dev/input/event*"
grab = false
swipe_start = 30.0
pinch_start = 0.15
rotate_start = 12.0
hold_delay = "250ms"

[helper]
socket = "/run/gesturesd/helper.sock"
timeout = "2s"
retries = 3
retry_delay = "200ms"
# after the retries run out, pointer operations are dropped for this long
cooldown = "5s"
group = ""
mode = "0660"
# peers allowed to connect, empty means anyone who can open the socket
allowed_uids = []
device_name = "gesturesd virtual pointer"

[logging]
file_logging = false
file = ""
log_level = ""

# Bindings are matched in order, the first match wins.
# kind: swipe, pinch, rotate, hold
# direction: up, down, left, right, up_left, up_right, down_left, down_right,
#            in, out, clockwise, counter_clockwise, any
# mode: oneshot (fires at the end) or continuous (fires on every update)
# Commands run through the shell and may use $dx $dy $scale $angle
# $fingers $direction and $kind.

[[gestures]]
name = "next workspace"
kind = "swipe"
fingers = 3
direction = "left"
command = "xdotool key super+Right"

[[gestures]]
name = "previous workspace"
kind = "swipe"
fingers = 3
direction = "right"
command = "xdotool key super+Left"

[[gestures]]
name = "four finger drag"
kind = "swipe"
fingers = 4
direction = "any"
mode = "continuous"
inject = "drag"
scale = 1.0
release_delay = "500ms"

[[gestures]]
name = "zoom in"
kind = "pinch"
fingers = 2
direction = "out"
command = "xdotool key ctrl+plus"

[[gestures]]
name = "middle click"
kind = "hold"
fingers = 3
inject = "click"
button = "middle"
`
