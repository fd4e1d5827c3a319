/*
Package protocol defines the chat wire protocol between the visitor widget and
the remote collaborator, and the structured messages posted to the host page.

Client to server kinds: "user" (free text) and "file_upload" (an uploaded file
announced by retrieval URL). Server to client kinds: "bot" (text with embedded
tags), "review_prompt" (text plus an external review URL), "warn" and "error".

Decoding is tolerant: payloads are decoded into a generic map first and then
into the typed message, so numeric ids or extra fields never fail a session.
A payload without a type is malformed.
*/
package protocol
