// Package script synthesizes the JavaScript programs injected into the
// KWin scripting host. Templates are named constants; every runtime
// value is escaped before interpolation so an adversarial window
// identity cannot break out of its string literal.
package script

import (
	"fmt"
	"strings"
)

// CallbackAddress identifies the D-Bus object the synthesized scripts
// call back into via KWin's callDBus.
type CallbackAddress struct {
	Service   string
	Path      string
	Interface string
}

// jsEscaper rewrites every character with special meaning inside a
// JavaScript string literal, including the line separators U+2028 and
// U+2029, which are line terminators in JS source.
var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// EscapeJS returns s safe for embedding inside a JavaScript string
// literal, single or double quoted.
func EscapeJS(s string) string {
	return jsEscaper.Replace(s)
}

const logPreamble = `function log(msg) {
  console.log('plasmadeck', msg);
  callDBus('%[1]s', '%[2]s', '%[3]s', 'Log', msg.toString());
}
`

const observerBody = `
function add(window) {
  try {
    log("ADD [enter] caption='" + window.caption + "', resourceClass=" + window.resourceClass);
    callDBus('%[1]s', '%[2]s', '%[3]s', 'WindowAdded', window.internalId.toString(), window.caption, window.resourceClass);
    log("ADD [exit] caption='" + window.caption + "'");
  } catch (e) {
    log("ADD [error] caption='" + window.caption + "', error=" + e.toString());
  }
}

function remove(window) {
  try {
    log("REMOVE [enter] caption='" + window.caption + "'");
    callDBus('%[1]s', '%[2]s', '%[3]s', 'WindowRemoved', window.internalId.toString());
    log("REMOVE [exit] caption='" + window.caption + "'");
  } catch (e) {
    log("REMOVE [error] caption='" + window.caption + "', error=" + e.toString());
  }
}

log("INIT");

for (const window of workspace.windowList()) {
  add(window);
}

workspace.windowAdded.connect(add);
workspace.windowRemoved.connect(remove);
`

const activationBody = `
const target = '%[1]s';
for (const win of workspace.windowList()) {
  log(win.internalId.toString() + " == " + target);
  if (win.internalId.toString() == target) {
    workspace.activeWindow = win;
  }
}
`

// Observer builds the long-lived script that reports every current
// window as added, then forwards the host's native add/remove
// notifications. Each handler body is wrapped in try/catch so a failed
// callback is reported through Log instead of killing the observer.
func Observer(cb CallbackAddress) string {
	return preamble(cb) + fmt.Sprintf(observerBody,
		EscapeJS(cb.Service), EscapeJS(cb.Path), EscapeJS(cb.Interface))
}

// Activation builds the one-shot script that makes the window with the
// given identity active. Every comparison is logged so identity
// mismatches can be debugged after the fact.
func Activation(cb CallbackAddress, identity string) string {
	return preamble(cb) + fmt.Sprintf(activationBody, EscapeJS(identity))
}

func preamble(cb CallbackAddress) string {
	return fmt.Sprintf(logPreamble,
		EscapeJS(cb.Service), EscapeJS(cb.Path), EscapeJS(cb.Interface))
}
