/*
Package widget implements the visitor chat widget runtime.

The runtime is a small state machine:

	Closed -> Opening -> Connected -> Disconnected
	   ^________|___________|______________|

Opening starts a fresh session (empty transcript, typing flag cleared) and asks
the host page to expand the frame. The connect acknowledgment moves to Connected;
no greeting is sent, it arrives as the first server message. A remote close moves
to Disconnected, which keeps the transcript but disables input. Closing from any
open state closes the channel and shrinks the frame.

Protocol failures never end the session: malformed payloads, failed sends and
failed uploads become entries in the transcript. The runtime never reconnects on
its own; the visitor reopens the widget to start again.
*/
package widget
