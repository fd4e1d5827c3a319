// Package render turns bot message text into renderable segments.
//
// Bot replies may embed two tags: interactive buttons and file downloads. The
// renderer never executes markup; unrecognised or malformed tags are kept as text
// so no authored content disappears. Activating a button calls back into the
// runtime's send path, so a click is indistinguishable from typed input.
package render
